package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrNotIngested),
		domain.IsKind(err, domain.ErrSnapshotNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCollaboratorUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a client-safe message. Collaborator
// failures surface as the apology text; other server errors stay opaque.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	switch {
	case domain.IsKind(err, domain.ErrCollaboratorUnavailable):
		message = domain.ApologyMessage
	case status >= http.StatusInternalServerError && !domain.IsKind(err, domain.ErrTemporary):
		message = "internal error"
	}

	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
