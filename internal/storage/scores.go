// ABOUTME: Daily health score operations for SQLite storage.
// ABOUTME: MergeDay runs the read-merge-write of one aggregate in a single transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
)

const scoreColumnsSQL = `user_id, score_date,
	sleep_score, stress_score, respiratory_score,
	sleep_contributors, stress_contributors, respiratory_contributors,
	providers, last_updated`

// MergeDay reads the user's enrichment records for date from deviceIDs, passes
// them to merge and upserts the result. The transaction begins IMMEDIATE, so
// concurrent merges of any day are serialized and the last to commit saw every
// per-device write committed before it started. A nil result writes nothing.
func (d *DB) MergeDay(ctx context.Context, userID, date string, deviceIDs []string, merge MergeFunc) (*models.DailyHealthScore, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("merge day: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	records, err := listEnrichmentForDevices(ctx, tx, userID, deviceIDs, date)
	if err != nil {
		return nil, fmt.Errorf("merge day: %w", err)
	}

	score := merge(records)
	if score == nil {
		return nil, nil
	}
	if score.UserID != userID || score.ScoreDate != date {
		return nil, fmt.Errorf("merge day: merged row %s does not match %s@%s", score.Key(), userID, date)
	}

	if err := upsertDailyScore(ctx, tx, score); err != nil {
		return nil, fmt.Errorf("merge day: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("merge day: commit: %w", err)
	}
	return score, nil
}

func upsertDailyScore(ctx context.Context, q queryer, s *models.DailyHealthScore) error {
	scores, err := scoreArgs(&s.Scores)
	if err != nil {
		return err
	}
	providers := s.Providers
	if providers == nil {
		providers = []string{}
	}
	providersJSON, err := json.Marshal(providers)
	if err != nil {
		return fmt.Errorf("encode providers: %w", err)
	}

	query := `
		INSERT INTO daily_health_scores (` + scoreColumnsSQL + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, score_date) DO UPDATE SET
			sleep_score = excluded.sleep_score,
			stress_score = excluded.stress_score,
			respiratory_score = excluded.respiratory_score,
			sleep_contributors = excluded.sleep_contributors,
			stress_contributors = excluded.stress_contributors,
			respiratory_contributors = excluded.respiratory_contributors,
			providers = excluded.providers,
			last_updated = excluded.last_updated
	`
	args := []any{s.UserID, s.ScoreDate}
	args = append(args, scores...)
	args = append(args, string(providersJSON), formatTime(s.LastUpdated))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert daily score: %w", err)
	}
	return nil
}

// GetDailyScore retrieves the aggregate for one user and date.
func (d *DB) GetDailyScore(ctx context.Context, userID, date string) (*models.DailyHealthScore, error) {
	query := `SELECT ` + scoreColumnsSQL + `
		FROM daily_health_scores
		WHERE user_id = ? AND score_date = ?`

	s, err := scanDailyScore(d.db.QueryRowContext(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get daily score %s@%s: %w", userID, date, ErrNotFound)
		}
		return nil, fmt.Errorf("get daily score: %w", err)
	}
	return s, nil
}

// ListDailyScores returns aggregates between two inclusive dates, newest first.
// An empty userID lists every user.
func (d *DB) ListDailyScores(ctx context.Context, userID, from, to string) ([]*models.DailyHealthScore, error) {
	var clauses []string
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, userID)
	}
	clauses, args = dateRange("score_date", from, to, clauses, args)

	query := `SELECT ` + scoreColumnsSQL + ` FROM daily_health_scores`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY score_date DESC, user_id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily scores: %w", err)
	}
	defer rows.Close()

	var scores []*models.DailyHealthScore
	for rows.Next() {
		s, err := scanDailyScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func scanDailyScore(row scanner) (*models.DailyHealthScore, error) {
	var s models.DailyHealthScore
	var providers, lastUpdated string
	var cols scoreColumns

	dest := []any{&s.UserID, &s.ScoreDate}
	dest = append(dest, cols.dest()...)
	dest = append(dest, &providers, &lastUpdated)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if err := cols.into(&s.Scores); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(providers), &s.Providers); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	var err error
	if s.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	return &s, nil
}
