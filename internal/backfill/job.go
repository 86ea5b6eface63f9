// ABOUTME: Backfill Job that re-aggregates every (user, date) with stored enrichment.
// ABOUTME: Bounded parallelism, cancellable between pairs, optionally checkpointed per run.
package backfill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/diagnostics"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
	"github.com/harperreed/healthscore/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the parallelism used when Options.Workers is unset.
const DefaultWorkers = 4

// Source enumerates the pairs to backfill.
type Source interface {
	DistinctUserDates(ctx context.Context) ([]models.UserDate, error)
}

// DayAggregator recomputes one user's daily score.
type DayAggregator interface {
	Aggregate(ctx context.Context, userID, date string) (*aggregate.Outcome, error)
}

// Checkpointer remembers which pairs a run has completed.
type Checkpointer interface {
	MarkDone(ctx context.Context, runID string, key models.UserDate) error
	IsDone(ctx context.Context, runID string, key models.UserDate) (bool, error)
	ClearRun(ctx context.Context, runID string) error
}

// FailureQueue is the aggregation-failure sink that Repair drains.
type FailureQueue interface {
	PendingFailures(ctx context.Context, limit int) ([]*diagnostics.Failure, error)
	Resolve(ctx context.Context, seen *diagnostics.Failure) error
}

// Options configures a job.
type Options struct {
	Workers int
	// RunID enables checkpointing when a Checkpointer is configured.
	RunID string
	// Resume skips pairs already checkpointed under RunID. Without it, any
	// checkpoints left under RunID are cleared before the run starts.
	Resume bool
}

// PairFailure is one pair that could not be aggregated.
type PairFailure struct {
	Key   models.UserDate `json:"key"`
	Error string          `json:"error"`
}

// Summary reports a run. Pairs neither processed, failed nor skipped were not
// reached before cancellation.
type Summary struct {
	RunID     string        `json:"run_id,omitempty"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Written   int           `json:"written"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Failures  []PairFailure `json:"failures,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Job runs backfills and repairs.
type Job struct {
	source      Source
	aggregator  DayAggregator
	checkpoints Checkpointer
	failures    FailureQueue
	opts        Options
}

// New creates a job. checkpoints and failures may be nil.
func New(source Source, aggregator DayAggregator, checkpoints Checkpointer, failures FailureQueue, opts Options) *Job {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Job{
		source:      source,
		aggregator:  aggregator,
		checkpoints: checkpoints,
		failures:    failures,
		opts:        opts,
	}
}

// Run aggregates every pair that has at least one stored metric. Individual
// failures are collected, never fatal. On cancellation no further pairs are
// started; in-flight pairs finish and the partial summary is returned with
// ctx.Err().
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	pairs, err := j.source.DistinctUserDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill: list pairs: %w", err)
	}

	summary := &Summary{RunID: j.opts.RunID, Total: len(pairs)}
	checkpointing := j.checkpoints != nil && j.opts.RunID != ""
	log := logging.Ctx(ctx).With().Str("component", "backfill").Str("run_id", j.opts.RunID).Logger()
	log.Info().Int("pairs", len(pairs)).Int("workers", j.opts.Workers).Bool("resume", j.opts.Resume).Msg("Backfill started")

	if checkpointing && !j.opts.Resume {
		if err := j.checkpoints.ClearRun(ctx, j.opts.RunID); err != nil {
			return nil, fmt.Errorf("backfill: clear checkpoints for run %s: %w", j.opts.RunID, err)
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(j.opts.Workers)

	for _, key := range pairs {
		if ctx.Err() != nil {
			break
		}
		if checkpointing && j.opts.Resume {
			done, err := j.checkpoints.IsDone(ctx, j.opts.RunID, key)
			if err != nil {
				log.Warn().Err(err).Str("key", key.String()).Msg("Checkpoint lookup failed, reprocessing")
			}
			if done {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				metrics.BackfillPairs.WithLabelValues("skipped").Inc()
				continue
			}
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// Started pairs run to completion even if the run is cancelled.
			workCtx := context.WithoutCancel(ctx)
			out, err := j.aggregator.Aggregate(workCtx, key.UserID, key.Date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, PairFailure{Key: key, Error: err.Error()})
				metrics.BackfillPairs.WithLabelValues("failed").Inc()
				log.Warn().Err(err).Str("key", key.String()).Msg("Backfill pair failed")
				return nil
			}
			summary.Processed++
			if out.Written {
				summary.Written++
			}
			metrics.BackfillPairs.WithLabelValues("processed").Inc()
			if checkpointing {
				if err := j.checkpoints.MarkDone(workCtx, j.opts.RunID, key); err != nil {
					log.Warn().Err(err).Str("key", key.String()).Msg("Failed to checkpoint pair")
				}
			}
			return nil
		})
	}

	_ = g.Wait()
	summary.Duration = time.Since(start)

	log.Info().
		Int("total", summary.Total).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Backfill finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// Repair re-aggregates every pair in the failure queue and resolves those
// that now succeed. An entry recorded again while its pair was being repaired
// stays queued and counts as failed.
func (j *Job) Repair(ctx context.Context) (*Summary, error) {
	if j.failures == nil {
		return &Summary{}, nil
	}
	start := time.Now()

	pending, err := j.failures.PendingFailures(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("repair: list failures: %w", err)
	}

	summary := &Summary{Total: len(pending)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(j.opts.Workers)

	for _, f := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			workCtx := context.WithoutCancel(ctx)
			out, err := j.aggregator.Aggregate(workCtx, f.UserID, f.Date)
			if err == nil {
				err = j.failures.Resolve(workCtx, f)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, PairFailure{Key: f.Key(), Error: err.Error()})
				return nil
			}
			summary.Processed++
			if out.Written {
				summary.Written++
			}
			return nil
		})
	}

	_ = g.Wait()
	summary.Duration = time.Since(start)
	metrics.PendingAggregationFailures.Set(float64(summary.Total - summary.Processed))
	if summary.Total > 0 {
		logging.Ctx(ctx).Info().
			Int("total", summary.Total).
			Int("repaired", summary.Processed).
			Int("failed", summary.Failed).
			Msg("Repair finished")
	}
	return summary, ctx.Err()
}
