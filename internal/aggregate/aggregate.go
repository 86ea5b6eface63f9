// ABOUTME: Daily Aggregator that recomputes one user's DailyHealthScore for one date.
// ABOUTME: Reads every device the user has connected and merges inside one store transaction.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
)

// Store is the storage the aggregator needs.
type Store interface {
	DeviceIDsForUser(ctx context.Context, userID string) ([]string, error)
	MergeDay(ctx context.Context, userID, date string, deviceIDs []string, merge storage.MergeFunc) (*models.DailyHealthScore, error)
}

// Outcome reports what one aggregation did.
type Outcome struct {
	Key     models.UserDate
	Written bool
	Records int
	Score   *models.DailyHealthScore
}

// Aggregator recomputes daily scores.
type Aggregator struct {
	store Store
	now   func() time.Time
}

// New creates an aggregator over store.
func New(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// Aggregate recomputes the aggregate for (userID, date). Days with no scored
// records on any of the user's devices are left untouched.
func (a *Aggregator) Aggregate(ctx context.Context, userID, date string) (*Outcome, error) {
	start := time.Now()
	out, err := a.aggregate(ctx, userID, date)
	metrics.RecordAggregation(out != nil && out.Written, time.Since(start), err)
	return out, err
}

func (a *Aggregator) aggregate(ctx context.Context, userID, date string) (*Outcome, error) {
	if userID == "" {
		return nil, errors.New("aggregate: empty user id")
	}
	if _, err := models.ParseDate(date); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	out := &Outcome{Key: models.UserDate{UserID: userID, Date: date}}

	deviceIDs, err := a.store.DeviceIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: devices: %w", out.Key, err)
	}
	if len(deviceIDs) == 0 {
		logging.Ctx(ctx).Debug().Str("key", out.Key.String()).Msg("No devices connected, nothing to aggregate")
		return out, nil
	}

	score, err := a.store.MergeDay(ctx, userID, date, deviceIDs, func(records []*models.EnrichmentRecord) *models.DailyHealthScore {
		out.Records = len(records)
		return Merge(userID, date, records, a.now())
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", out.Key, err)
	}

	out.Score = score
	out.Written = score != nil
	logging.Ctx(ctx).Debug().
		Str("key", out.Key.String()).
		Int("records", out.Records).
		Bool("written", out.Written).
		Msg("Aggregated daily score")
	return out, nil
}
