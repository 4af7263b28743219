package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
)

const batchSize = 256

var pointNamespace = uuid.MustParse("6f1d8c2e-4b7a-5d0e-9c3f-2a8b1e4d7c60")

// Store persists scope snapshots as Qdrant points, one point per chunk,
// tagged with the scope id in the payload.
type Store struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (s *Store) Backend() string { return "qdrant" }

type pointPayload struct {
	Scope      string            `json:"scope"`
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Page       int               `json:"page"`
	Sequence   int               `json:"sequence"`
	Position   int               `json:"position"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	SavedAt    time.Time         `json:"saved_at"`
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

// Write replaces every point of the snapshot scope with the snapshot items.
func (s *Store) Write(ctx context.Context, snap domain.Snapshot) error {
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	if err := s.deleteScope(ctx, snap.Scope); err != nil {
		return err
	}
	if len(snap.Items) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(snap.Items[0].Embedding)); err != nil {
		return err
	}

	points := make([]point, 0, len(snap.Items))
	for i, item := range snap.Items {
		if item.Scope != snap.Scope {
			return domain.WrapError(domain.ErrInvalidInput, "write snapshot", fmt.Errorf("item %s has scope %q", item.ID, item.Scope))
		}
		points = append(points, point{
			ID:     uuid.NewSHA1(pointNamespace, []byte(snap.Scope+"/"+item.ID)).String(),
			Vector: item.Embedding,
			Payload: pointPayload{
				Scope:      snap.Scope,
				ChunkID:    item.ID,
				DocumentID: item.DocumentID,
				Page:       item.Page,
				Sequence:   item.Sequence,
				Position:   i,
				Text:       item.Text,
				Metadata:   item.Metadata,
				SavedAt:    savedAt,
			},
		})
	}

	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		body := map[string]any{"points": points[start:end]}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection)
		if _, err := s.do(ctx, "qdrant.snapshot_upsert", http.MethodPut, url, body); err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
	}
	return nil
}

// Read scrolls every point of the scope and rebuilds the snapshot in the
// order it was written.
func (s *Store) Read(ctx context.Context, scopeID string) (domain.Snapshot, error) {
	var (
		payloads []pointPayload
		vectors  [][]float32
		offset   any
	)
	for {
		reqBody := map[string]any{
			"filter":       scopeFilter(scopeID),
			"limit":        batchSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, s.collection)
		raw, err := s.do(ctx, "qdrant.snapshot_scroll", http.MethodPost, url, reqBody)
		if err != nil {
			var statusErr *statusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
				return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotNotFound, "read snapshot", err)
			}
			return domain.Snapshot{}, domain.WrapError(domain.ErrTemporary, "read snapshot", err)
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					Payload pointPayload `json:"payload"`
					Vector  []float32    `json:"vector"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := json.Unmarshal(raw, &scrollResp); err != nil {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode scroll response", err)
		}
		for _, p := range scrollResp.Result.Points {
			payloads = append(payloads, p.Payload)
			vectors = append(vectors, p.Vector)
		}
		if scrollResp.Result.NextPageOffset == nil || len(scrollResp.Result.Points) == 0 {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}

	if len(payloads) == 0 {
		return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotNotFound, "read snapshot", fmt.Errorf("no points for scope %q", scopeID))
	}

	order := make([]int, len(payloads))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return payloads[order[a]].Position < payloads[order[b]].Position
	})

	snap := domain.Snapshot{
		Version: domain.SnapshotVersion,
		Scope:   scopeID,
		SavedAt: payloads[order[0]].SavedAt,
		Items:   make([]domain.Chunk, 0, len(order)),
	}
	for _, idx := range order {
		p := payloads[idx]
		chunk := domain.Chunk{
			ID:         p.ChunkID,
			DocumentID: p.DocumentID,
			Page:       p.Page,
			Sequence:   p.Sequence,
			Text:       p.Text,
			Embedding:  vectors[idx],
			Scope:      p.Scope,
			Metadata:   p.Metadata,
		}
		if err := chunk.Validate(); err != nil {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "read snapshot", err)
		}
		if chunk.Scope != scopeID {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "read snapshot", fmt.Errorf("point %s has scope %q", chunk.ID, chunk.Scope))
		}
		snap.Items = append(snap.Items, chunk)
	}
	return snap, nil
}

func (s *Store) deleteScope(ctx context.Context, scopeID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, s.collection)
	_, err := s.do(ctx, "qdrant.snapshot_delete", http.MethodPost, url, map[string]any{"filter": scopeFilter(scopeID)})
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("qdrant delete scope: %w", err)
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, vectorSize int) error {
	s.ensureMu.Lock()
	if s.ensuredCollection && s.ensuredVectorSize == vectorSize {
		s.ensureMu.Unlock()
		return nil
	}
	s.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
	_, err := s.do(ctx, "qdrant.ensure_collection", http.MethodPut, url, reqBody)
	if err != nil {
		var statusErr *statusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusConflict {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
	}

	s.ensureMu.Lock()
	s.ensuredCollection = true
	s.ensuredVectorSize = vectorSize
	s.ensureMu.Unlock()
	return nil
}

func (s *Store) do(ctx context.Context, operation, method, url string, reqBody any) ([]byte, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	var out []byte
	err = resilience.Run(ctx, s.executor, operation, func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &statusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(msg))}
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		out = raw
		return nil
	}, classifyQdrantError)
	return out, err
}

func scopeFilter(scopeID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "scope", "match": map[string]any{"value": scopeID}},
		},
	}
}
