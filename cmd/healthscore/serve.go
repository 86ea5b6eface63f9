// ABOUTME: CLI command that runs the webhook and score API service.
// ABOUTME: Builds the pipeline, HTTP router and repair scheduler under one supervisor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/api"
	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/guard"
	"github.com/harperreed/healthscore/internal/ingest"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and score API server",
	Long: `Run the HTTP service.

ROUTES:

  POST /webhooks/wearables                 Provider webhook deliveries
  GET  /api/v1/users/{user}/scores         Daily scores (?from=&to=)
  GET  /api/v1/users/{user}/scores/{date}  One daily score
  POST /api/v1/admin/backfill              Recompute every stored day
  GET  /healthz                            Liveness and database check
  GET  /metrics                            Prometheus metrics

When repair is enabled, days whose aggregation failed are retried on
repair.schedule (default every 15 minutes).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		d, err := openDiagnostics()
		if err != nil {
			return err
		}

		agg := aggregate.New(db)
		pipeline := ingest.New(extract.New(db), db, agg, d)

		handler := api.NewHandler(api.Config{
			Pipeline: pipeline,
			Scores:   db,
			Backfill: func(ctx context.Context, opts backfill.Options) (*backfill.Summary, error) {
				return backfill.New(db, agg, d, d, opts).Run(ctx)
			},
			Guard:      guard.New(cfg.Payload.SoftLimit, cfg.Payload.HardLimit),
			Secret:     cfg.Webhook.Secret,
			RateLimit:  cfg.Webhook.RateLimit,
			RateWindow: cfg.Webhook.RateWindow,
		})

		opts := server.Options{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Handler:         handler.Router(),
		}
		if cfg.Repair.Enabled {
			opts.Repair = backfill.New(db, agg, nil, d, backfill.Options{Workers: cfg.Backfill.Workers})
			opts.FailureCounter = d
			opts.RepairSchedule = cfg.Repair.Schedule
		}

		sup, err := server.New(opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logging.Info().
			Str("addr", cfg.Server.Addr).
			Str("db", db.Path()).
			Bool("repair", cfg.Repair.Enabled).
			Msg("healthscore serving")

		if err := sup.Serve(ctx); err != nil {
			return err
		}
		logging.Info().Msg("healthscore stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
