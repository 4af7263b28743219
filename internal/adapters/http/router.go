package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const maxUploadBytes = 64 << 20

// HTTPMetrics is the subset of the metrics registry the router mounts.
type HTTPMetrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

type Router struct {
	cfg      config.Config
	ingestUC ports.DocumentIngestor
	queryUC  ports.QueryService
	docs     ports.DocumentReader
	scopes   ports.ScopeManager

	metrics HTTPMetrics
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithMetrics(m HTTPMetrics) RouterOption {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(rt *Router) {
		if l != nil {
			rt.logger = l
		}
	}
}

func NewRouter(
	cfg config.Config,
	ingestUC ports.DocumentIngestor,
	queryUC ports.QueryService,
	docs ports.DocumentReader,
	scopes ports.ScopeManager,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:      cfg,
		ingestUC: ingestUC,
		queryUC:  queryUC,
		docs:     docs,
		scopes:   scopes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/rag/query", rt.queryRAG)

	mux.HandleFunc("DELETE /v1/scopes/{scope}", rt.clearScope)
	mux.HandleFunc("POST /v1/scopes/{scope}/snapshot", rt.saveSnapshot)
	mux.HandleFunc("POST /v1/scopes/{scope}/snapshot/load", rt.loadSnapshot)

	mux.HandleFunc("DELETE /v1/index", rt.clearIndex)
	mux.HandleFunc("DELETE /v1/index/documents/{id}", rt.removeDocument)
	mux.HandleFunc("GET /v1/index/stats", rt.indexStats)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = recoverMiddleware(rt.logger, handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.ingestUC == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "ingestion is disabled"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with a file field is required"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	doc, err := rt.ingestUC.Upload(r.Context(), header.Filename, mimeType, r.FormValue("conversation_id"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type queryRequest struct {
	Question       string `json:"question"`
	Document       string `json:"document"`
	ConversationID string `json:"conversation_id"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	result, err := rt.queryUC.AnswerQuery(r.Context(), req.Question, domain.ScopeFilter{
		DocumentID:     strings.TrimSpace(req.Document),
		ConversationID: strings.TrimSpace(req.ConversationID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) clearScope(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	removed, err := rt.scopes.ClearScope(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "removed": removed})
}

func (rt *Router) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	saved, err := rt.scopes.SaveSnapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "saved": saved})
}

func (rt *Router) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	loaded, err := rt.scopes.LoadSnapshot(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "loaded": loaded})
}

func (rt *Router) clearIndex(w http.ResponseWriter, r *http.Request) {
	if err := rt.scopes.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) removeDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := rt.scopes.RemoveDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": id, "removed": removed})
}

func (rt *Router) indexStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.scopes.Stats(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Error("http_response_encode_failed", "error", err.Error())
	}
}
