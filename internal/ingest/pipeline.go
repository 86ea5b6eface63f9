// ABOUTME: Two-stage ingestion pipeline from a parsed envelope to stored daily scores.
// ABOUTME: Stage one stores per-device records; stage two re-aggregates and reports failures to diagnostics.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/healthscore/internal/aggregate"
	"github.com/harperreed/healthscore/internal/diagnostics"
	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
	"github.com/harperreed/healthscore/internal/models"
)

// Extractor turns an envelope into per-device records.
type Extractor interface {
	Extract(ctx context.Context, env *extract.Envelope, receivedAt time.Time) (*extract.Result, error)
}

// RecordStore persists per-device enrichment records.
type RecordStore interface {
	UpsertEnrichment(ctx context.Context, r *models.EnrichmentRecord) error
}

// DayAggregator recomputes one user's daily score.
type DayAggregator interface {
	Aggregate(ctx context.Context, userID, date string) (*aggregate.Outcome, error)
}

// FailureSink records aggregation failures for later repair.
type FailureSink interface {
	RecordFailure(ctx context.Context, key models.UserDate, cause error) (*diagnostics.Failure, error)
}

// Report summarizes one processed delivery.
type Report struct {
	Extracted           int  `json:"extracted"`
	Stored              int  `json:"stored"`
	Aggregated          int  `json:"aggregated"`
	AggregationFailures int  `json:"aggregation_failures"`
	Unmapped            int  `json:"unmapped"`
	NoEnrichment        int  `json:"no_enrichment"`
	Ignored             bool `json:"ignored,omitempty"`
}

// Pipeline wires extraction, storage and aggregation together.
type Pipeline struct {
	extractor  Extractor
	store      RecordStore
	aggregator DayAggregator
	sink       FailureSink
}

// New creates a pipeline. sink may be nil, in which case aggregation failures
// are only logged and counted.
func New(extractor Extractor, store RecordStore, aggregator DayAggregator, sink FailureSink) *Pipeline {
	return &Pipeline{extractor: extractor, store: store, aggregator: aggregator, sink: sink}
}

// Process runs one delivery through both stages. The returned error carries
// only extraction and per-device storage failures; every record is attempted
// even when earlier ones fail. Aggregation failures never reach the caller.
func (p *Pipeline) Process(ctx context.Context, env *extract.Envelope, receivedAt time.Time) (*Report, error) {
	res, err := p.extractor.Extract(ctx, env, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	report := &Report{
		Extracted:    len(res.Records),
		Unmapped:     res.Unmapped,
		NoEnrichment: res.NoEnrichment,
		Ignored:      res.Ignored,
	}

	var errs []error
	pairs := make(map[models.UserDate]bool)
	for _, r := range res.Records {
		err := p.store.UpsertEnrichment(ctx, r)
		metrics.RecordUpsert(err)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).
				Str("user_id", r.UserID).
				Str("provider", r.Provider).
				Str("date", r.SummaryDate).
				Msg("Failed to store enrichment record")
			errs = append(errs, fmt.Errorf("store %s/%s/%s: %w", r.UserID, r.Provider, r.SummaryDate, err))
			continue
		}
		report.Stored++
		pairs[models.UserDate{UserID: r.UserID, Date: r.SummaryDate}] = true
	}

	// Records are committed, so a client disconnect must not abort stage two.
	aggCtx := context.WithoutCancel(ctx)
	for _, key := range sortedPairs(pairs) {
		out, err := p.aggregator.Aggregate(aggCtx, key.UserID, key.Date)
		if err != nil {
			report.AggregationFailures++
			p.recordFailure(aggCtx, key, err)
			continue
		}
		if out.Written {
			report.Aggregated++
		}
	}

	return report, errors.Join(errs...)
}

func (p *Pipeline) recordFailure(ctx context.Context, key models.UserDate, cause error) {
	logging.Ctx(ctx).Error().Err(cause).Str("key", key.String()).Msg("Daily aggregation failed")
	if p.sink == nil {
		return
	}
	f, err := p.sink.RecordFailure(ctx, key, cause)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key.String()).Msg("Failed to record aggregation failure")
		return
	}
	if f.Attempts == 1 {
		metrics.PendingAggregationFailures.Inc()
	}
}

func sortedPairs(pairs map[models.UserDate]bool) []models.UserDate {
	out := make([]models.UserDate, 0, len(pairs))
	for k := range pairs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Date < out[j].Date
	})
	return out
}
