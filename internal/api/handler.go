// Package api serves related-document queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/middleware"
)

// Index is the part of *similarity.Index the handlers use.
type Index interface {
	IsInitialized() bool
	DocumentState(id string) similarity.State
	GetSimilarDocuments(id string, limit int, candidateIDs []string) []similarity.Result
	GetCandidateFiles(id string) []string
	CalculateSimilarity(id1, id2 string) float64
	SimilarityThreshold() float64
	Stats() similarity.Stats
	ForceReindex(ctx context.Context, progress similarity.ProgressFunc) error
	Save(ctx context.Context) error
}

type Handler struct {
	index        Index
	defaultLimit int
	maxResults   int
	logger       *slog.Logger

	// base outlives requests; reindex runs under it.
	base       context.Context
	reindexing atomic.Bool
}

// New builds a handler. Background reindex runs are cancelled with ctx.
func New(ctx context.Context, ix Index, cfg config.ServerConfig, log *slog.Logger) *Handler {
	return &Handler{
		index:        ix,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       logger.WithComponent(log, "api"),
		base:         ctx,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/candidates", h.Candidates)
	mux.HandleFunc("GET /api/v1/similarity", h.Similarity)
	mux.HandleFunc("GET /api/v1/documents/{id...}", h.Document)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("POST /api/v1/save", h.Save)
}

type similarResponse struct {
	ID        string              `json:"id"`
	Threshold float64             `json:"threshold"`
	Results   []similarity.Result `json:"results"`
}

// Similar answers GET /api/v1/similar?id=<doc>&limit=<n>&min=<score>.
// Without min every non-zero match is returned; min=threshold applies the
// index's recommended threshold.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context(), h.logger)

	id, ok := h.indexedID(w, r, "id")
	if !ok {
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	threshold := h.index.SimilarityThreshold()
	minScore := 0.0
	switch raw := r.URL.Query().Get("min"); raw {
	case "":
	case "threshold":
		minScore = threshold
	default:
		minScore, err = strconv.ParseFloat(raw, 64)
		if err != nil || minScore < 0 || minScore > 1 {
			h.writeErr(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "min must be a number in [0,1] or 'threshold'"))
			return
		}
	}

	results := h.index.GetSimilarDocuments(id, 0, nil)
	filtered := make([]similarity.Result, 0, min(limit, len(results)))
	for _, res := range results {
		if len(filtered) == limit {
			break
		}
		if res.Similarity >= minScore {
			filtered = append(filtered, res)
		}
	}

	log.Info("similar documents served",
		"id", id,
		"returned", len(filtered),
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
	h.writeJSON(w, http.StatusOK, similarResponse{ID: id, Threshold: threshold, Results: filtered})
}

// Candidates answers GET /api/v1/candidates?id=<doc>.
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := h.indexedID(w, r, "id")
	if !ok {
		return
	}
	cands := h.index.GetCandidateFiles(id)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"count":      len(cands),
		"candidates": cands,
	})
}

// Similarity answers GET /api/v1/similarity?a=<doc>&b=<doc>.
func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	a, ok := h.indexedID(w, r, "a")
	if !ok {
		return
	}
	b, ok := h.indexedID(w, r, "b")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"a":          a,
		"b":          b,
		"similarity": h.index.CalculateSimilarity(a, b),
	})
}

// Document reports the indexing state of one document.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":    id,
		"state": h.index.DocumentState(id).String(),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

// Reindex starts a full rebuild in the background. Queries keep hitting the
// previous index until the rebuild completes.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if !h.reindexing.CompareAndSwap(false, true) {
		h.writeError(w, http.StatusConflict, "reindex already running")
		return
	}
	log := logger.FromContext(r.Context(), h.logger)
	go func() {
		defer h.reindexing.Store(false)
		start := time.Now()
		if err := h.index.ForceReindex(h.base, nil); err != nil {
			log.Error("reindex failed", "error", err)
			return
		}
		log.Info("reindex completed", "duration_ms", time.Since(start).Milliseconds())
	}()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexing"})
}

// Reindexing reports whether a background rebuild is running.
func (h *Handler) Reindexing() bool { return h.reindexing.Load() }

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Save(r.Context()); err != nil {
		logger.FromContext(r.Context(), h.logger).Error("cache save failed", "error", err)
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// indexedID reads a document id from the query string and checks it is
// indexed, writing the error response itself when it is not.
func (h *Handler) indexedID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := r.URL.Query().Get(param)
	if id == "" {
		h.writeErr(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter '%s' is required", param))
		return "", false
	}
	if h.index.DocumentState(id) != similarity.StateIndexed {
		h.writeErr(w, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not indexed", id))
		return "", false
	}
	return id, true
}

func (h *Handler) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, h.maxResults), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status code; AppError messages are shown as is.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	h.writeError(w, status, http.StatusText(status))
}
