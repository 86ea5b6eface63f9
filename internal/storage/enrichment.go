// ABOUTME: Enrichment record operations for SQLite storage.
// ABOUTME: Idempotent upsert keyed by user, provider, data type and summary date.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/healthscore/internal/models"
)

const enrichmentColumns = `id, user_id, provider, data_type, device_id, summary_date,
	sleep_score, stress_score, respiratory_score,
	sleep_contributors, stress_contributors, respiratory_contributors,
	recorded_at`

// hasAnyScore restricts queries to rows that carry at least one metric.
const hasAnyScore = `(sleep_score IS NOT NULL OR stress_score IS NOT NULL OR respiratory_score IS NOT NULL)`

// UpsertEnrichment inserts a record or overwrites every metric of the row with
// the same (user_id, provider, data_type, summary_date). It is one statement,
// so concurrent deliveries of the same key never interleave.
func (d *DB) UpsertEnrichment(ctx context.Context, r *models.EnrichmentRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	scores, err := scoreArgs(&r.Scores)
	if err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}

	query := `
		INSERT INTO enrichment_records (` + enrichmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, data_type, summary_date) DO UPDATE SET
			device_id = excluded.device_id,
			sleep_score = excluded.sleep_score,
			stress_score = excluded.stress_score,
			respiratory_score = excluded.respiratory_score,
			sleep_contributors = excluded.sleep_contributors,
			stress_contributors = excluded.stress_contributors,
			respiratory_contributors = excluded.respiratory_contributors,
			recorded_at = excluded.recorded_at
	`
	args := []any{r.ID.String(), r.UserID, r.Provider, r.DataType, r.DeviceID, r.SummaryDate}
	args = append(args, scores...)
	args = append(args, formatTime(r.RecordedAt))

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert enrichment: %w", err)
	}
	return nil
}

// GetEnrichment retrieves the record for one key.
func (d *DB) GetEnrichment(ctx context.Context, userID, provider, dataType, date string) (*models.EnrichmentRecord, error) {
	query := `SELECT ` + enrichmentColumns + `
		FROM enrichment_records
		WHERE user_id = ? AND provider = ? AND data_type = ? AND summary_date = ?`

	r, err := scanEnrichment(d.db.QueryRowContext(ctx, query, userID, provider, dataType, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get enrichment %s/%s/%s/%s: %w", userID, provider, dataType, date, ErrNotFound)
		}
		return nil, fmt.Errorf("get enrichment: %w", err)
	}
	return r, nil
}

// ListEnrichment returns a user's records between two inclusive dates.
// Empty bounds are open. Results are ordered by date, then provider and data type.
func (d *DB) ListEnrichment(ctx context.Context, userID, from, to string) ([]*models.EnrichmentRecord, error) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	clauses, args = dateRange("summary_date", from, to, clauses, args)

	query := `SELECT ` + enrichmentColumns + `
		FROM enrichment_records
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY summary_date, provider, data_type`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrichment: %w", err)
	}
	defer rows.Close()

	return scanEnrichments(rows)
}

// ListEnrichmentForDevices returns the user's records on date from any of the
// given devices that carry at least one metric, most recent delivery first.
func (d *DB) ListEnrichmentForDevices(ctx context.Context, userID string, deviceIDs []string, date string) ([]*models.EnrichmentRecord, error) {
	return listEnrichmentForDevices(ctx, d.db, userID, deviceIDs, date)
}

func listEnrichmentForDevices(ctx context.Context, q queryer, userID string, deviceIDs []string, date string) ([]*models.EnrichmentRecord, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + enrichmentColumns + `
		FROM enrichment_records
		WHERE user_id = ? AND summary_date = ?
			AND device_id IN (` + placeholders(len(deviceIDs)) + `)
			AND ` + hasAnyScore + `
		ORDER BY recorded_at DESC, provider, data_type`

	args := []any{userID, date}
	for _, id := range deviceIDs {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrichment for devices: %w", err)
	}
	defer rows.Close()

	return scanEnrichments(rows)
}

// DistinctUserDates enumerates every (user, date) pair that has at least one
// metric, ordered by user then date.
func (d *DB) DistinctUserDates(ctx context.Context) ([]models.UserDate, error) {
	query := `SELECT DISTINCT user_id, summary_date
		FROM enrichment_records
		WHERE ` + hasAnyScore + `
		ORDER BY user_id, summary_date`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct user dates: %w", err)
	}
	defer rows.Close()

	var pairs []models.UserDate
	for rows.Next() {
		var p models.UserDate
		if err := rows.Scan(&p.UserID, &p.Date); err != nil {
			return nil, fmt.Errorf("scan user date: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// scanEnrichment scans a single row into an EnrichmentRecord.
func scanEnrichment(row scanner) (*models.EnrichmentRecord, error) {
	var r models.EnrichmentRecord
	var idStr, recordedAt string
	var cols scoreColumns

	dest := []any{&idStr, &r.UserID, &r.Provider, &r.DataType, &r.DeviceID, &r.SummaryDate}
	dest = append(dest, cols.dest()...)
	dest = append(dest, &recordedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if r.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid enrichment ID in database: %w", err)
	}
	if r.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, err
	}
	if err := cols.into(&r.Scores); err != nil {
		return nil, err
	}
	return &r, nil
}

// scanEnrichments scans multiple rows into a slice of EnrichmentRecords.
func scanEnrichments(rows *sql.Rows) ([]*models.EnrichmentRecord, error) {
	var records []*models.EnrichmentRecord
	for rows.Next() {
		r, err := scanEnrichment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrichment: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
