// ABOUTME: Cron-scheduled repair of aggregation failures recorded by the pipeline.
// ABOUTME: Overlapping runs are skipped; the pending-failure gauge is seeded at start.
package server

import (
	"context"
	"fmt"

	"github.com/harperreed/healthscore/internal/backfill"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Repairer re-aggregates queued failures.
type Repairer interface {
	Repair(ctx context.Context) (*backfill.Summary, error)
}

// FailureCounter reports how many failures are queued.
type FailureCounter interface {
	CountFailures(ctx context.Context) (int, error)
}

// RepairService runs Repair on a cron schedule.
type RepairService struct {
	repairer Repairer
	counter  FailureCounter
	schedule cron.Schedule
	spec     string
}

// NewRepairService parses spec (standard five-field cron or a descriptor such
// as "@every 15m"). counter may be nil.
func NewRepairService(repairer Repairer, counter FailureCounter, spec string) (*RepairService, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("repair schedule %q: %w", spec, err)
	}
	return &RepairService{repairer: repairer, counter: counter, schedule: schedule, spec: spec}, nil
}

// Serve implements suture.Service.
func (s *RepairService) Serve(ctx context.Context) error {
	s.seedGauge(ctx)

	logger := cronLogger{l: logging.With().Str("component", "repair").Logger()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Start()
	logging.Info().Str("schedule", s.spec).Msg("Repair scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *RepairService) seedGauge(ctx context.Context) {
	if s.counter == nil {
		return
	}
	n, err := s.counter.CountFailures(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count pending aggregation failures")
		return
	}
	metrics.PendingAggregationFailures.Set(float64(n))
}

func (s *RepairService) runOnce(ctx context.Context) {
	summary, err := s.repairer.Repair(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Repair run failed")
		return
	}
	logging.Debug().
		Int("total", summary.Total).
		Int("repaired", summary.Processed).
		Int("failed", summary.Failed).
		Msg("Repair run finished")
}

func (s *RepairService) String() string {
	return "repair-scheduler"
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
