package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandevgo/docqa/internal/core"
	"github.com/sandevgo/docqa/internal/providers/loader"
	"github.com/sandevgo/docqa/internal/service/answer"
	"github.com/sandevgo/docqa/internal/service/ingest"
	"github.com/sandevgo/docqa/internal/service/session"
)

const maxUploadBytes = 64 << 20 // 64 MiB across a whole batch

// Answerer runs one chat turn.
type Answerer interface {
	Answer(ctx context.Context, clientID, sessionID, message string) (answer.Answer, error)
}

// Ingester indexes uploaded files for a client.
type Ingester interface {
	IngestFiles(ctx context.Context, clientID string, files []ingest.File, cfg loader.ChunkerConfig) (ingest.Result, error)
}

// SessionManager is the slice of the lifecycle manager the routes need.
type SessionManager interface {
	ListActive(ctx context.Context) ([]string, error)
	SessionInfo(ctx context.Context, sessionID string) (core.SessionInfo, error)
	Invalidate(ctx context.Context, sessionID string) error
	RunCleanup(ctx context.Context) (int, error)
	Stats(ctx context.Context) (session.Stats, error)
}

// CollectionRegistry is the slice of the registry the routes need.
type CollectionRegistry interface {
	ListCollections() []core.CollectionInfo
	Stats(clientID string) core.CollectionStats
	Delete(ctx context.Context, clientID string) error
}

type Handler struct {
	answerer    Answerer
	ingester    Ingester
	sessions    SessionManager
	collections CollectionRegistry
}

func NewHandler(answerer Answerer, ingester Ingester, sessions SessionManager, collections CollectionRegistry) *Handler {
	return &Handler{
		answerer:    answerer,
		ingester:    ingester,
		sessions:    sessions,
		collections: collections,
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(r.Context(), w, fmt.Errorf("invalid request body: %w", core.ErrValidation))
		return
	}

	res, err := h.answerer.Answer(r.Context(), req.ClientID, req.SessionID, req.Message)
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(r.Context(), w, fmt.Errorf("invalid multipart form: %w", core.ErrValidation))
		return
	}

	cfg := loader.DefaultChunkerConfig()
	if v := r.FormValue("chunk_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if v := r.FormValue("chunk_overlap"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OverlapTokens = n
		}
	}

	var files []ingest.File
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				respondError(r.Context(), w, fmt.Errorf("open upload %q: %w", header.Filename, core.ErrValidation))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				respondError(r.Context(), w, fmt.Errorf("read upload %q: %w", header.Filename, core.ErrValidation))
				return
			}
			files = append(files, ingest.File{Name: header.Filename, Data: data})
		}
	}

	result, err := h.ingester.IngestFiles(r.Context(), r.FormValue("client_id"), files, cfg)
	if err != nil {
		respondErrorFiles(r.Context(), w, err, result.Files)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"collections": h.collections.ListCollections(),
	})
}

func (h *Handler) CollectionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.collections.Stats(chi.URLParam(r, "clientID")))
}

func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if err := h.collections.Delete(r.Context(), clientID); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("collection for client %s deleted", clientID),
	})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sessions.ListActive(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (h *Handler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.SessionInfo(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Invalidate(r.Context(), sessionID); err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("session %s cleared", sessionID),
	})
}

func (h *Handler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sessions.RunCleanup(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	stats, err := h.sessions.Stats(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"stats":   stats,
	})
}

func (h *Handler) SessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context())
	if err != nil {
		respondError(r.Context(), w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   core.DocqaVersion,
		"timestamp": time.Now().Unix(),
	})
}
