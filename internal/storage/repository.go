// ABOUTME: Repository interface for enrichment, daily score, and connection storage.
// ABOUTME: Defines the contract the pipeline, API, CLI and MCP layers depend on.
package storage

import (
	"context"

	"github.com/harperreed/healthscore/internal/models"
)

// MergeFunc computes a day's aggregate from that day's enrichment records.
// It returns nil when there is nothing to write.
type MergeFunc func(records []*models.EnrichmentRecord) *models.DailyHealthScore

// Repository defines the storage interface for scoring data.
// This interface allows swapping implementations (e.g., for testing).
type Repository interface {
	// Enrichment operations
	UpsertEnrichment(ctx context.Context, r *models.EnrichmentRecord) error
	GetEnrichment(ctx context.Context, userID, provider, dataType, date string) (*models.EnrichmentRecord, error)
	ListEnrichment(ctx context.Context, userID, from, to string) ([]*models.EnrichmentRecord, error)
	ListEnrichmentForDevices(ctx context.Context, userID string, deviceIDs []string, date string) ([]*models.EnrichmentRecord, error)
	DistinctUserDates(ctx context.Context) ([]models.UserDate, error)

	// Daily score operations
	MergeDay(ctx context.Context, userID, date string, deviceIDs []string, merge MergeFunc) (*models.DailyHealthScore, error)
	GetDailyScore(ctx context.Context, userID, date string) (*models.DailyHealthScore, error)
	ListDailyScores(ctx context.Context, userID, from, to string) ([]*models.DailyHealthScore, error)

	// Connection directory
	LookupDevice(ctx context.Context, externalDeviceID string) (*models.WearableConnection, error)
	DeviceIDsForUser(ctx context.Context, userID string) ([]string, error)
	ListConnections(ctx context.Context, userID string) ([]*models.WearableConnection, error)
	UpsertConnection(ctx context.Context, c *models.WearableConnection) error
	SetConnectionActive(ctx context.Context, externalDeviceID string, active bool) error

	// Export and import
	GetAllData(ctx context.Context) (*ExportData, error)
	ImportData(ctx context.Context, data *ExportData) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
