// ABOUTME: SQLite schema definition and initialization.
// ABOUTME: Defines enrichment_records, daily_health_scores, and wearable_connections.
package storage

// initSchema creates or updates the database schema.
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wearable_connections (
		external_device_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS enrichment_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		data_type TEXT NOT NULL,
		device_id TEXT NOT NULL,
		summary_date TEXT NOT NULL,
		sleep_score REAL,
		stress_score REAL,
		respiratory_score REAL,
		sleep_contributors TEXT,
		stress_contributors TEXT,
		respiratory_contributors TEXT,
		recorded_at DATETIME NOT NULL,
		UNIQUE (user_id, provider, data_type, summary_date)
	);

	CREATE TABLE IF NOT EXISTS daily_health_scores (
		user_id TEXT NOT NULL,
		score_date TEXT NOT NULL,
		sleep_score REAL,
		stress_score REAL,
		respiratory_score REAL,
		sleep_contributors TEXT,
		stress_contributors TEXT,
		respiratory_contributors TEXT,
		providers TEXT NOT NULL DEFAULT '[]',
		last_updated DATETIME NOT NULL,
		PRIMARY KEY (user_id, score_date)
	);

	CREATE INDEX IF NOT EXISTS idx_connections_user ON wearable_connections(user_id);
	CREATE INDEX IF NOT EXISTS idx_enrichment_device_date ON enrichment_records(device_id, summary_date);
	CREATE INDEX IF NOT EXISTS idx_enrichment_user_date ON enrichment_records(user_id, summary_date);
	`

	_, err := d.db.Exec(schema)
	return err
}
