package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/memory"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc           *domain.Document
	getErr        error
	statusErr     error
	failStatusErr error
	statusCalls   []statusCall
	stats         domain.IngestionStats
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return nil }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if status == domain.StatusFailed && f.failStatusErr != nil {
		return f.failStatusErr
	}
	return f.statusErr
}

func (f *processRepoFake) SaveStats(_ context.Context, _ string, stats domain.IngestionStats) error {
	f.stats = stats
	return nil
}

type pageExtractorFake struct {
	pages map[string][]domain.Page
	err   error
}

func (f *pageExtractorFake) ExtractPages(_ context.Context, doc *domain.Document) ([]domain.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages, ok := f.pages[doc.Filename]
	if !ok {
		return nil, errors.New("unreadable document")
	}
	return pages, nil
}

// pipeChunker splits on "|" so tests control chunk boundaries exactly.
type pipeChunker struct{}

func (pipeChunker) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type embedderFake struct {
	mu      sync.Mutex
	short   bool
	err     error
	batches int
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, []float32{float32(len(t)), 1})
	}
	if f.short {
		return out[:len(out)-1], nil
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

type snapshotterFake struct {
	mu     sync.Mutex
	scopes []string
	err    error
}

func (f *snapshotterFake) SaveSnapshot(_ context.Context, scopeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, scopeID)
	return 0, f.err
}

type ingestObserverFake struct {
	mu      sync.Mutex
	reports []domain.IngestReport
}

func (f *ingestObserverFake) ObserveIngest(r domain.IngestReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
}

func twoPageExtractor() *pageExtractorFake {
	return &pageExtractorFake{pages: map[string][]domain.Page{
		"guide.pdf": {
			{Number: 1, Text: "alpha one|alpha two"},
			{Number: 3, Text: "gamma"},
		},
	}}
}

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "guide.pdf"}}
	idx := memory.New()
	observer := &ingestObserverFake{}
	uc := NewProcessDocumentUseCase(repo, twoPageExtractor(), pipeChunker{}, &embedderFake{}, idx, WithIngestObserver(observer))

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 {
		t.Fatalf("expected 2 status calls, got %d", len(repo.statusCalls))
	}
	if repo.statusCalls[0].status != domain.StatusProcessing || repo.statusCalls[1].status != domain.StatusReady {
		t.Fatalf("unexpected status sequence: %+v", repo.statusCalls)
	}
	if repo.stats != (domain.IngestionStats{PageCount: 2, WordCount: 4, ChunkCount: 3}) {
		t.Fatalf("unexpected stats: %+v", repo.stats)
	}

	chunks := idx.Scoped(domain.ScopeFilter{})
	if len(chunks) != 3 {
		t.Fatalf("expected 3 indexed chunks, got %d", len(chunks))
	}
	if chunks[0].ID != domain.ChunkID(domain.ScopeGlobal, "guide.pdf", 0) || chunks[2].Page != 3 || chunks[2].Scope != domain.ScopeGlobal {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if len(observer.reports) != 1 || observer.reports[0].Status != domain.StatusReady {
		t.Fatalf("expected one ready report, got %+v", observer.reports)
	}
}

func TestProcessByIDMarksFailedOnExtractError(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "guide.pdf"}}
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{err: errors.New("extract fail")}, pipeChunker{}, &embedderFake{}, memory.New())

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrIngestionFailed) {
		t.Fatalf("expected ErrIngestionFailed, got %v", err)
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected processing + failed status updates, got %+v", repo.statusCalls)
	}
}

func TestProcessByIDMarksFailedOnVectorMismatch(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "guide.pdf"}}
	idx := memory.New()
	uc := NewProcessDocumentUseCase(repo, twoPageExtractor(), pipeChunker{}, &embedderFake{short: true}, idx)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[1].status != domain.StatusFailed {
		t.Fatalf("expected final failed status, got %+v", repo.statusCalls)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected nothing indexed, got %d", idx.Len())
	}
}

func TestProcessByIDReportsMarkFailedError(t *testing.T) {
	repo := &processRepoFake{
		doc:           &domain.Document{ID: "doc-1", Filename: "missing.pdf"},
		failStatusErr: errors.New("db down"),
	}
	uc := NewProcessDocumentUseCase(repo, twoPageExtractor(), pipeChunker{}, &embedderFake{}, memory.New())

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "mark failed status") {
		t.Fatalf("expected mark failed error, got %v", err)
	}
}

func TestIngestReplacesPreviousGeneration(t *testing.T) {
	idx := memory.New()
	extractor := twoPageExtractor()
	uc := NewProcessDocumentUseCase(&processRepoFake{}, extractor, pipeChunker{}, &embedderFake{}, idx)
	doc := &domain.Document{ID: "v1", Filename: "guide.pdf"}

	if _, err := uc.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	extractor.pages["guide.pdf"] = []domain.Page{{Number: 1, Text: "rewritten"}}
	if _, err := uc.Ingest(context.Background(), &domain.Document{ID: "v2", Filename: "guide.pdf"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	chunks := idx.Scoped(domain.ScopeFilter{})
	if len(chunks) != 1 || chunks[0].Text != "rewritten" || chunks[0].Metadata["upload_id"] != "v2" {
		t.Fatalf("expected only the new generation, got %+v", chunks)
	}
}

func TestIngestConversationDocumentSavesSnapshotBestEffort(t *testing.T) {
	snap := &snapshotterFake{err: errors.New("disk full")}
	idx := memory.New()
	uc := NewProcessDocumentUseCase(&processRepoFake{}, twoPageExtractor(), pipeChunker{}, &embedderFake{}, idx, WithSnapshotter(snap))

	report, err := uc.Ingest(context.Background(), &domain.Document{ID: "d", Filename: "guide.pdf", ConversationID: "conv-1"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Status != domain.StatusReady {
		t.Fatalf("expected ready report despite snapshot failure, got %+v", report)
	}
	if len(snap.scopes) != 1 || snap.scopes[0] != "conv-1" {
		t.Fatalf("expected snapshot of conv-1, got %v", snap.scopes)
	}
	if got := idx.InScope("conv-1"); len(got) != 3 {
		t.Fatalf("expected chunks tagged conv-1, got %d", len(got))
	}
}

func TestIngestGlobalDocumentSavesGlobalSnapshot(t *testing.T) {
	snap := &snapshotterFake{}
	uc := NewProcessDocumentUseCase(&processRepoFake{}, twoPageExtractor(), pipeChunker{}, &embedderFake{}, memory.New(), WithSnapshotter(snap))
	if _, err := uc.Ingest(context.Background(), &domain.Document{ID: "d", Filename: "guide.pdf"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(snap.scopes) != 1 || snap.scopes[0] != domain.ScopeGlobal {
		t.Fatalf("expected snapshot of global, got %v", snap.scopes)
	}
}

func TestProcessByIDPersistsGlobalScope(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Filename: "guide.pdf"}}
	idx := memory.New()
	store := &snapshotStoreFake{}
	scopes := NewScopeUseCase(idx, store, nil, nil)
	uc := NewProcessDocumentUseCase(repo, twoPageExtractor(), pipeChunker{}, &embedderFake{}, idx, WithSnapshotter(scopes))

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	restarted := memory.New()
	loaded, err := NewScopeUseCase(restarted, store, nil, nil).LoadSnapshot(context.Background(), domain.ScopeGlobal)
	if err != nil || !loaded {
		t.Fatalf("LoadSnapshot() = %v, %v", loaded, err)
	}
	if restarted.Len() != 3 {
		t.Fatalf("expected 3 chunks after restart, got %d", restarted.Len())
	}
}

func notesExtractor() *pageExtractorFake {
	return &pageExtractorFake{pages: map[string][]domain.Page{
		"notes.pdf": {{Number: 1, Text: "first note|second note"}},
	}}
}

func TestIngestSameFileInTwoConversationsKeepsBoth(t *testing.T) {
	idx := memory.New()
	uc := NewProcessDocumentUseCase(&processRepoFake{}, notesExtractor(), pipeChunker{}, &embedderFake{}, idx)

	for _, conv := range []string{"c1", "c2"} {
		if _, err := uc.Ingest(context.Background(), &domain.Document{ID: conv, Filename: "notes.pdf", ConversationID: conv}); err != nil {
			t.Fatalf("Ingest(%s) error = %v", conv, err)
		}
	}

	c1 := idx.InScope("c1")
	c2 := idx.InScope("c2")
	if len(c1) != 2 || len(c2) != 2 {
		t.Fatalf("expected 2 chunks per conversation, got c1=%d c2=%d", len(c1), len(c2))
	}
	if c1[0].ID == c2[0].ID {
		t.Fatalf("expected scope-qualified ids, both are %q", c1[0].ID)
	}
}

func TestLoadingConversationSnapshotKeepsGlobalCopy(t *testing.T) {
	idx := memory.New()
	scopes := NewScopeUseCase(idx, &snapshotStoreFake{}, nil, nil)
	uc := NewProcessDocumentUseCase(&processRepoFake{}, notesExtractor(), pipeChunker{}, &embedderFake{}, idx, WithSnapshotter(scopes))

	if _, err := uc.Ingest(context.Background(), &domain.Document{ID: "1", Filename: "notes.pdf", ConversationID: "c1"}); err != nil {
		t.Fatalf("Ingest(c1) error = %v", err)
	}
	if _, err := uc.Ingest(context.Background(), &domain.Document{ID: "2", Filename: "notes.pdf"}); err != nil {
		t.Fatalf("Ingest(global) error = %v", err)
	}
	if loaded, err := scopes.LoadSnapshot(context.Background(), "c1"); err != nil || !loaded {
		t.Fatalf("LoadSnapshot() = %v, %v", loaded, err)
	}

	if got := idx.InScope(domain.ScopeGlobal); len(got) != 2 {
		t.Fatalf("expected 2 global chunks after loading c1, got %d", len(got))
	}
	if got := idx.InScope("c1"); len(got) != 2 {
		t.Fatalf("expected 2 c1 chunks, got %d", len(got))
	}
}

func TestIngestBatchSnapshotsEachScopeOnce(t *testing.T) {
	extractor := &pageExtractorFake{pages: map[string][]domain.Page{
		"a.pdf": {{Number: 1, Text: "a1"}},
		"b.pdf": {{Number: 1, Text: "b1"}},
		"c.pdf": {{Number: 1, Text: "c1"}},
	}}
	snap := &snapshotterFake{}
	uc := NewProcessDocumentUseCase(&processRepoFake{}, extractor, pipeChunker{}, &embedderFake{}, memory.New(), WithSnapshotter(snap), WithConcurrency(3))

	uc.IngestBatch(context.Background(), []*domain.Document{
		{ID: "1", Filename: "a.pdf"},
		{ID: "2", Filename: "b.pdf"},
		{ID: "3", Filename: "c.pdf", ConversationID: "conv-1"},
		{ID: "4", Filename: "missing.pdf", ConversationID: "conv-2"},
	})

	want := []string{domain.ScopeGlobal, "conv-1"}
	if len(snap.scopes) != len(want) || snap.scopes[0] != want[0] || snap.scopes[1] != want[1] {
		t.Fatalf("expected snapshots %v, got %v", want, snap.scopes)
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	extractor := &pageExtractorFake{pages: map[string][]domain.Page{
		"a.pdf": {{Number: 1, Text: "a1|a2"}},
		"c.pdf": {{Number: 1, Text: "c1"}},
		"d.pdf": {{Number: 1, Text: "   "}},
	}}
	idx := memory.New()
	uc := NewProcessDocumentUseCase(&processRepoFake{}, extractor, pipeChunker{}, &embedderFake{}, idx, WithConcurrency(2))

	docs := []*domain.Document{
		{ID: "1", Filename: "a.pdf"},
		{ID: "2", Filename: "b.pdf"},
		{ID: "3", Filename: "c.pdf"},
		{ID: "4", Filename: "d.pdf"},
	}
	batch := uc.IngestBatch(context.Background(), docs)

	if len(batch.Reports) != 4 {
		t.Fatalf("expected 4 reports, got %d", len(batch.Reports))
	}
	for i, doc := range docs {
		if batch.Reports[i].Filename != doc.Filename {
			t.Fatalf("report %d is for %s, want %s", i, batch.Reports[i].Filename, doc.Filename)
		}
	}
	if batch.Succeeded() != 2 {
		t.Fatalf("expected 2 successes, got %d", batch.Succeeded())
	}
	failed := batch.Failed()
	if len(failed) != 2 || failed[0].Filename != "b.pdf" || failed[1].Filename != "d.pdf" {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 chunks from successful documents, got %d", idx.Len())
	}
}

func TestIngestSingleShortPageYieldsOneChunk(t *testing.T) {
	extractor := &pageExtractorFake{pages: map[string][]domain.Page{
		"facts.pdf": {{Number: 1, Text: "The sky is blue. Water boils at 100 degrees."}},
	}}
	idx := memory.New()
	uc := NewProcessDocumentUseCase(&processRepoFake{}, extractor, chunking.NewSentenceSplitter(800, 50), &embedderFake{}, idx)

	report, err := uc.Ingest(context.Background(), &domain.Document{ID: "f", Filename: "facts.pdf"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	chunks := idx.Scoped(domain.ScopeFilter{})
	if report.Stats.ChunkCount != 1 || len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "The sky is blue.") || !strings.Contains(chunks[0].Text, "Water boils at 100 degrees.") {
		t.Fatalf("expected both sentences in one chunk, got %q", chunks[0].Text)
	}
}
