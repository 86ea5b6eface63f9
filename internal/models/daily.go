// ABOUTME: DailyHealthScore is the canonical per-user-per-day aggregate.
// ABOUTME: WearableConnection maps external device ids to internal users.
package models

import "time"

// DailyHealthScore merges every device's enrichment for one user and date.
type DailyHealthScore struct {
	UserID      string    `json:"user_id" yaml:"user_id"`
	ScoreDate   string    `json:"score_date" yaml:"score_date"`
	Scores      `yaml:",inline"`
	Providers   []string  `json:"providers" yaml:"providers"`
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
}

// Key returns the (user, date) pair this row is unique on.
func (d *DailyHealthScore) Key() UserDate {
	return UserDate{UserID: d.UserID, Date: d.ScoreDate}
}

// WearableConnection is a user's link to one provider device.
// Owned by the account-linking service; read-only to the scoring pipeline.
type WearableConnection struct {
	UserID           string    `json:"user_id" yaml:"user_id" validate:"required"`
	Provider         string    `json:"provider" yaml:"provider" validate:"required"`
	ExternalDeviceID string    `json:"external_device_id" yaml:"external_device_id" validate:"required"`
	Active           bool      `json:"active" yaml:"active"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
}

// NewWearableConnection creates an active connection.
func NewWearableConnection(userID, provider, externalDeviceID string) *WearableConnection {
	return &WearableConnection{
		UserID:           userID,
		Provider:         provider,
		ExternalDeviceID: externalDeviceID,
		Active:           true,
		CreatedAt:        time.Now().UTC(),
	}
}

// Validate checks the connection's required fields.
func (c *WearableConnection) Validate() error {
	return validateStruct(c)
}
