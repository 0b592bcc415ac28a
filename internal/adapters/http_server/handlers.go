package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"marketing_sync/internal/app"
	"marketing_sync/internal/domain"
)

// RunQueries is the read side the handlers serve.
type RunQueries interface {
	GetRun(ctx context.Context, id string) (app.RunDetail, error)
	ListRuns(ctx context.Context, q domain.RunsQuery) ([]domain.Run, error)
	LatestSummary(ctx context.Context) (domain.StoredSummary, error)
}

type Handlers struct {
	Q RunQueries
	// Checks are run by /healthz; any error reports 503.
	Checks map[string]func(context.Context) error
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.health)
	s.mux.Get("/v1/runs", h.listRuns)
	s.mux.Get("/v1/runs/{id}", h.getRun)
	s.mux.Get("/v1/reviews/summary/latest", h.latestSummary)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeLookupError maps repository errors onto problem responses.
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", what+" not found")
		return
	}
	log.Error().Err(err).Str("what", what).Msg("lookup failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeJSON answers 304 when the client already holds the current ETag.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); etag != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range h.Checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "degraded", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	q := domain.RunsQuery{Limit: 50}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		q.Limit = l
	}
	if p := r.URL.Query().Get("pipeline"); p != "" {
		if !knownPipeline(p) {
			writeProblem(w, http.StatusBadRequest, "Invalid pipeline", "unknown pipeline "+strconv.Quote(p))
			return
		}
		q.Pipeline = &p
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.RunStatus(s)
		switch st {
		case domain.RunRunning, domain.RunSucceeded, domain.RunFailed:
		default:
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be running, succeeded or failed")
			return
		}
		q.Status = &st
	}

	runs, err := h.Q.ListRuns(r.Context(), q)
	if err != nil {
		writeLookupError(w, err, "runs")
		return
	}
	writeJSON(w, r, map[string]any{"items": runs})
}

func knownPipeline(p string) bool {
	for _, k := range app.Pipelines {
		if k == p {
			return true
		}
	}
	return false
}

func (h *Handlers) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id is required")
		return
	}
	out, err := h.Q.GetRun(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, "run")
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) latestSummary(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.LatestSummary(r.Context())
	if err != nil {
		writeLookupError(w, err, "summary")
		return
	}
	writeJSON(w, r, out)
}
