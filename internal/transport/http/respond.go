package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/service/ingest"
	"github.com/sandevgo/docqa/pkg/log"
)

type errorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Files   []ingest.FileResult `json:"files,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps the error taxonomy onto status codes and a stable error
// kind, so callers can distinguish retryable upstream failures from their
// own mistakes.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	respondErrorFiles(ctx, w, err, nil)
}

// respondErrorFiles is respondError for batch uploads: the per-file outcomes
// gathered before the failure ride along in the error body.
func respondErrorFiles(ctx context.Context, w http.ResponseWriter, err error, files []ingest.FileResult) {
	kind, status := classify(err)
	if status >= http.StatusInternalServerError {
		log.FromCtx(ctx).Error().Err(err).Str("kind", kind).Msg("request failed")
	} else {
		log.FromCtx(ctx).Warn().Err(err).Str("kind", kind).Msg("request rejected")
	}
	respondJSON(w, status, errorBody{Error: kind, Message: err.Error(), Files: files})
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, core.ErrValidation):
		return "validation_error", http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedFormat):
		return "unsupported_format", http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, core.ErrUpstreamTimeout):
		return "upstream_timeout", http.StatusGatewayTimeout
	case errors.Is(err, core.ErrUpstreamFailure):
		return "upstream_failure", http.StatusBadGateway
	case errors.Is(err, core.ErrStorage):
		return "storage_error", http.StatusInternalServerError
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
