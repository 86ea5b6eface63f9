// ABOUTME: Column encoding helpers shared by the enrichment and score tables.
// ABOUTME: Maps nullable scores and JSON contributor maps to SQLite values.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scoreColumns holds the nullable score columns while scanning.
type scoreColumns struct {
	sleep, stress, respiratory                      sql.NullFloat64
	sleepContrib, stressContrib, respiratoryContrib sql.NullString
}

func (c *scoreColumns) dest() []any {
	return []any{
		&c.sleep, &c.stress, &c.respiratory,
		&c.sleepContrib, &c.stressContrib, &c.respiratoryContrib,
	}
}

func (c *scoreColumns) into(s *models.Scores) error {
	s.SleepScore = nullFloat(c.sleep)
	s.StressScore = nullFloat(c.stress)
	s.RespiratoryScore = nullFloat(c.respiratory)

	var err error
	if s.SleepContributors, err = decodeContributors(c.sleepContrib); err != nil {
		return err
	}
	if s.StressContributors, err = decodeContributors(c.stressContrib); err != nil {
		return err
	}
	if s.RespiratoryContributors, err = decodeContributors(c.respiratoryContrib); err != nil {
		return err
	}
	return nil
}

// scoreArgs returns the six score column values in schema order.
func scoreArgs(s *models.Scores) ([]any, error) {
	args := []any{floatArg(s.SleepScore), floatArg(s.StressScore), floatArg(s.RespiratoryScore)}
	for _, k := range models.AllScoreKinds {
		enc, err := encodeContributors(s.ContributorsFor(k))
		if err != nil {
			return nil, fmt.Errorf("encode %s contributors: %w", k, err)
		}
		args = append(args, enc)
	}
	return args, nil
}

func floatArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// encodeContributors stores an empty map as NULL.
func encodeContributors(c models.Contributors) (any, error) {
	if len(c) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeContributors(ns sql.NullString) (models.Contributors, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var c models.Contributors
	if err := json.Unmarshal([]byte(ns.String), &c); err != nil {
		return nil, fmt.Errorf("decode contributors: %w", err)
	}
	if len(c) == 0 {
		return nil, nil
	}
	return c, nil
}

// timeLayout is fixed width so stored timestamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// dateRange appends optional inclusive bounds on column to a WHERE clause.
func dateRange(column, from, to string, clauses []string, args []any) ([]string, []any) {
	if from != "" {
		clauses = append(clauses, column+" >= ?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, column+" <= ?")
		args = append(args, to)
	}
	return clauses, args
}
