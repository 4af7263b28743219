package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

type ingestFake struct {
	gotFilename     string
	gotConversation string
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType, conversationID string, body io.Reader) (*domain.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.gotFilename = filename
	f.gotConversation = conversationID

	now := time.Now().UTC()
	return &domain.Document{
		ID:             "doc-1",
		Filename:       filename,
		MimeType:       mimeType,
		StoragePath:    "doc-1_" + filename,
		ConversationID: conversationID,
		Status:         domain.StatusUploaded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

type queryFake struct {
	result    *domain.QueryResult
	err       error
	gotFilter domain.ScopeFilter
}

func (f *queryFake) AnswerQuery(_ context.Context, _ string, filter domain.ScopeFilter) (*domain.QueryResult, error) {
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type docsFake struct {
	err error
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.pdf", Status: domain.StatusReady, ChunkCount: 3}, nil
}

type scopesFake struct {
	removed   int
	loaded    bool
	err       error
	cleared   bool
	lastScope string
}

func (f *scopesFake) ClearScope(_ context.Context, scopeID string) (int, error) {
	f.lastScope = scopeID
	return f.removed, f.err
}

func (f *scopesFake) ClearAll(context.Context) error {
	f.cleared = true
	return f.err
}

func (f *scopesFake) RemoveDocument(_ context.Context, documentID string) (int, error) {
	f.lastScope = documentID
	return f.removed, f.err
}

func (f *scopesFake) SaveSnapshot(_ context.Context, scopeID string) (int, error) {
	f.lastScope = scopeID
	return f.removed, f.err
}

func (f *scopesFake) LoadSnapshot(_ context.Context, scopeID string) (bool, error) {
	f.lastScope = scopeID
	return f.loaded, f.err
}

func (f *scopesFake) Stats(context.Context) domain.IndexStats {
	return domain.IndexStats{TotalChunks: 4, Documents: 2, ChunksPerScope: map[string]int{"global": 4}}
}

type routerDeps struct {
	ingest ports.DocumentIngestor
	query  ports.QueryService
	docs   ports.DocumentReader
	scopes ports.ScopeManager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(cfg config.Config, deps routerDeps) http.Handler {
	if deps.query == nil {
		deps.query = &queryFake{result: &domain.QueryResult{HasRelevantInfo: true, Answer: "ok"}}
	}
	if deps.docs == nil {
		deps.docs = docsFake{}
	}
	if deps.scopes == nil {
		deps.scopes = &scopesFake{}
	}
	return NewRouter(cfg, deps.ingest, deps.query, deps.docs, deps.scopes, WithLogger(discardLogger())).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}, routerDeps{}).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestUploadDocumentPassesConversationID(t *testing.T) {
	ingest := &ingestFake{}
	handler := newTestHandler(config.Config{}, routerDeps{ingest: ingest})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "guide.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.WriteField("conversation_id", "conv-7"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var doc domain.Document
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-1" || ingest.gotFilename != "guide.pdf" || ingest.gotConversation != "conv-7" {
		t.Fatalf("unexpected upload: doc=%+v ingest=%+v", doc, ingest)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{}, routerDeps{ingest: &ingestFake{}})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryRAGBuildsScopeFilter(t *testing.T) {
	query := &queryFake{result: &domain.QueryResult{
		Answer:          "Paris",
		HasRelevantInfo: true,
		Confidence:      0.82,
		Citations:       []domain.Citation{{Source: "geo.pdf", Pages: []int{2}}},
	}}
	handler := newTestHandler(config.Config{}, routerDeps{query: query})

	res := postJSON(t, handler, "/v1/rag/query", map[string]string{
		"question": "capital?", "document": " geo ", "conversation_id": "conv-1",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if query.gotFilter != (domain.ScopeFilter{DocumentID: "geo", ConversationID: "conv-1"}) {
		t.Fatalf("unexpected filter: %+v", query.gotFilter)
	}
	var result domain.QueryResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Answer != "Paris" || len(result.Citations) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestQueryRAGRejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(config.Config{}, routerDeps{})
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestQueryRAGMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("empty question")), http.StatusBadRequest, "empty question"},
		{"collaborator", domain.WrapError(domain.ErrCollaboratorUnavailable, "embed query", errors.New("dial tcp")), http.StatusServiceUnavailable, domain.ApologyMessage},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, routerDeps{query: &queryFake{err: tc.err}})
			res := postJSON(t, handler, "/v1/rag/query", map[string]string{"question": "q"})
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !strings.Contains(resp["error"], tc.body) {
				t.Fatalf("expected error containing %q, got %q", tc.body, resp["error"])
			}
			if strings.Contains(resp["error"], "dial tcp") {
				t.Fatalf("collaborator detail leaked: %q", resp["error"])
			}
		})
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	handler := newTestHandler(config.Config{}, routerDeps{
		docs: docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))},
	})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestScopeEndpoints(t *testing.T) {
	scopes := &scopesFake{removed: 3, loaded: true}
	handler := newTestHandler(config.Config{}, routerDeps{scopes: scopes})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/scopes/conv-1", nil))
	if res.Code != http.StatusOK || scopes.lastScope != "conv-1" {
		t.Fatalf("clear scope: code=%d scope=%q", res.Code, scopes.lastScope)
	}
	var cleared map[string]any
	if err := json.NewDecoder(res.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cleared["removed"] != float64(3) {
		t.Fatalf("unexpected clear response: %+v", cleared)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/scopes/global/snapshot/load", nil))
	if res.Code != http.StatusOK || scopes.lastScope != "global" {
		t.Fatalf("load snapshot: code=%d scope=%q", res.Code, scopes.lastScope)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/scopes/conv-2/snapshot", nil))
	if res.Code != http.StatusOK || scopes.lastScope != "conv-2" {
		t.Fatalf("save snapshot: code=%d scope=%q", res.Code, scopes.lastScope)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/index", nil))
	if res.Code != http.StatusNoContent || !scopes.cleared {
		t.Fatalf("clear index: code=%d cleared=%v", res.Code, scopes.cleared)
	}
}

func TestRemoveDocumentNotIngestedReturns404(t *testing.T) {
	scopes := &scopesFake{err: domain.WrapError(domain.ErrNotIngested, "remove document", errors.New("ghost.pdf"))}
	handler := newTestHandler(config.Config{}, routerDeps{scopes: scopes})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/index/documents/ghost.pdf", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSnapshotCorruptMapsTo500(t *testing.T) {
	scopes := &scopesFake{err: domain.WrapError(domain.ErrSnapshotCorrupt, "load snapshot", errors.New("bad json"))}
	handler := newTestHandler(config.Config{}, routerDeps{scopes: scopes})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/scopes/global/snapshot/load", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
}

func TestIndexStats(t *testing.T) {
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}, routerDeps{}).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/index/stats", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var stats domain.IndexStats
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalChunks != 4 || stats.ChunksPerScope["global"] != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUploadWithoutIngestorIsNotImplemented(t *testing.T) {
	res := httptest.NewRecorder()
	newTestHandler(config.Config{}, routerDeps{}).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents", nil))
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", res.Code)
	}
}
