// ABOUTME: chi router for webhook ingress, score reads, admin triggers and probes.
// ABOUTME: Wires request ids, panic recovery, real-ip, metrics and webhook rate limiting.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/guard"
	"github.com/harperreed/healthscore/internal/ingest"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingester runs a parsed delivery through the pipeline.
type Ingester interface {
	Process(ctx context.Context, env *extract.Envelope, receivedAt time.Time) (*ingest.Report, error)
}

// ScoreReader serves read-only score queries.
type ScoreReader interface {
	GetDailyScore(ctx context.Context, userID, date string) (*models.DailyHealthScore, error)
	ListDailyScores(ctx context.Context, userID, from, to string) ([]*models.DailyHealthScore, error)
	Ping(ctx context.Context) error
}

// BackfillFunc starts one backfill run and blocks until it ends.
type BackfillFunc func(ctx context.Context, opts backfill.Options) (*backfill.Summary, error)

// Config holds handler dependencies and ingress policy.
type Config struct {
	Pipeline Ingester
	Scores   ScoreReader
	// Backfill mounts the admin trigger when set.
	Backfill BackfillFunc
	Guard    *guard.Guard
	// Secret enables webhook signature verification when set.
	Secret     string
	RateLimit  int
	RateWindow time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	cfg Config
	now func() time.Time
}

// NewHandler creates a handler. A nil Guard selects the default limits.
func NewHandler(cfg Config) *Handler {
	if cfg.Guard == nil {
		cfg.Guard = guard.New(0, 0)
	}
	return &Handler{cfg: cfg, now: time.Now}
}

// Router builds the route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(h.cfg.RateLimit, h.cfg.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
				}),
			))
		}
		r.Post("/webhooks/wearables", h.Webhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/{userID}/scores", h.ListScores)
		r.Get("/users/{userID}/scores/{date}", h.GetScore)
		if h.cfg.Backfill != nil {
			r.Post("/admin/backfill", h.TriggerBackfill)
		}
	})

	return r
}
