// ABOUTME: Read-only daily score endpoints, the admin backfill trigger and the health probe.
// ABOUTME: Dates are YYYY-MM-DD; range bounds are inclusive and optional.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
)

type scoresResponse struct {
	UserID string                     `json:"user_id"`
	From   string                     `json:"from,omitempty"`
	To     string                     `json:"to,omitempty"`
	Scores []*models.DailyHealthScore `json:"scores"`
}

// ListScores handles GET /api/v1/users/{userID}/scores?from=&to=.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := models.ParseDate(d); err != nil {
			respondError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD", nil)
			return
		}
	}

	scores, err := h.cfg.Scores.ListDailyScores(r.Context(), userID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list scores", err)
		return
	}
	if scores == nil {
		scores = []*models.DailyHealthScore{}
	}
	respondJSON(w, http.StatusOK, scoresResponse{UserID: userID, From: from, To: to, Scores: scores})
}

// GetScore handles GET /api/v1/users/{userID}/scores/{date}.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	date := chi.URLParam(r, "date")
	if _, err := models.ParseDate(date); err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
		return
	}

	score, err := h.cfg.Scores.GetDailyScore(r.Context(), userID, date)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no score for that day", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get score", err)
		return
	}
	respondJSON(w, http.StatusOK, score)
}

// TriggerBackfill handles POST /api/v1/admin/backfill?workers=&run_id=&resume=.
// The run is bound to the request; a disconnect stops it between pairs and
// the partial summary is still returned. The server write timeout is lifted
// for the request since a full run can outlast it.
func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := backfill.Options{RunID: q.Get("run_id")}

	if v := q.Get("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 64 {
			respondError(w, http.StatusBadRequest, "workers must be between 1 and 64", nil)
			return
		}
		opts.Workers = n
	}
	if v := q.Get("resume"); v != "" {
		resume, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "resume must be a boolean", nil)
			return
		}
		if resume && opts.RunID == "" {
			respondError(w, http.StatusBadRequest, "resume requires run_id", nil)
			return
		}
		opts.Resume = resume
	}

	log := logging.Ctx(r.Context())
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("Could not lift write deadline for backfill")
	}
	log.Info().Str("run_id", opts.RunID).Int("workers", opts.Workers).Msg("Backfill triggered")

	summary, err := h.cfg.Backfill(r.Context(), opts)
	if err != nil && (summary == nil || !errors.Is(err, context.Canceled)) {
		respondError(w, http.StatusInternalServerError, "backfill failed", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Healthz handles GET /healthz by pinging the database.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.cfg.Scores.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
