// ABOUTME: Enrichment Extractor turning provider event envelopes into per-device records.
// ABOUTME: Resolves devices through the connection directory and keeps only the scored metrics.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
	"github.com/harperreed/healthscore/internal/models"
	"github.com/harperreed/healthscore/internal/storage"
)

// ErrMalformedPayload is returned when the body is not a provider event envelope.
var ErrMalformedPayload = errors.New("malformed payload")

// ignoredTypes are event types that never carry data entries.
var ignoredTypes = map[string]bool{
	"auth":                     true,
	"deauth":                   true,
	"user_reauth":              true,
	"healthcheck":              true,
	"access_revoked":           true,
	"connection_error":         true,
	"processing":               true,
	"large_request_processing": true,
	"large_request_sending":    true,
}

// DeviceRef identifies the provider device a delivery came from.
// UserID is the provider-assigned external device id, not an internal user.
type DeviceRef struct {
	UserID      string `json:"user_id"`
	Provider    string `json:"provider"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// Envelope is a provider event as delivered to the webhook.
type Envelope struct {
	Type string           `json:"type"`
	User *DeviceRef       `json:"user,omitempty"`
	Data []map[string]any `json:"data,omitempty"`
}

// Parse decodes an event envelope.
func Parse(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}
	return &env, nil
}

// Directory resolves provider device ids to internal users.
type Directory interface {
	LookupDevice(ctx context.Context, externalDeviceID string) (*models.WearableConnection, error)
}

// Result summarizes one extraction.
type Result struct {
	Records      []*models.EnrichmentRecord
	Entries      int
	Unmapped     int
	NoEnrichment int
	Ignored      bool
}

// Extractor pulls enrichment records out of event envelopes.
type Extractor struct {
	dir Directory
}

// New creates an extractor backed by the given connection directory.
func New(dir Directory) *Extractor {
	return &Extractor{dir: dir}
}

// Extract returns one record per data entry that resolves to a known device and
// carries an enrichment object. Entries for unknown devices are skipped. A
// directory failure other than not-found aborts the extraction.
func (e *Extractor) Extract(ctx context.Context, env *Envelope, receivedAt time.Time) (*Result, error) {
	dataType := strings.ToLower(strings.TrimSpace(env.Type))
	if ignoredTypes[dataType] {
		logging.Ctx(ctx).Debug().Str("type", logging.Sanitize(dataType)).Msg("Ignoring non-data event")
		return &Result{Ignored: true}, nil
	}

	res := &Result{Entries: len(env.Data)}
	connections := make(map[string]*models.WearableConnection)

	for i, entry := range env.Data {
		ref := entryDeviceRef(entry, env.User)
		if ref == nil || ref.UserID == "" {
			res.Unmapped++
			metrics.ExtractedEntries.WithLabelValues("unmapped").Inc()
			logging.Ctx(ctx).Warn().Int("entry", i).Str("type", logging.Sanitize(dataType)).
				Msg("Data entry has no device reference")
			continue
		}

		conn, seen := connections[ref.UserID]
		if !seen {
			var err error
			conn, err = e.dir.LookupDevice(ctx, ref.UserID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("lookup device: %w", err)
			}
			connections[ref.UserID] = conn
		}
		if conn == nil {
			res.Unmapped++
			metrics.ExtractedEntries.WithLabelValues("unmapped").Inc()
			logging.Ctx(ctx).Warn().
				Str("device_id", logging.Sanitize(ref.UserID)).
				Str("provider", logging.Sanitize(ref.Provider)).
				Msg("Dropping entry for unknown device")
			continue
		}

		enrichment := findEnrichment(entry)
		if enrichment == nil {
			res.NoEnrichment++
			metrics.ExtractedEntries.WithLabelValues("no_enrichment").Inc()
			continue
		}

		provider := conn.Provider
		if provider == "" {
			provider = ref.Provider
		}
		rec := models.NewEnrichmentRecord(conn.UserID, strings.ToLower(provider), dataType,
			ref.UserID, summaryDate(entry, receivedAt)).WithRecordedAt(receivedAt)
		extractScores(ctx, enrichment, &rec.Scores)

		res.Records = append(res.Records, rec)
		metrics.ExtractedEntries.WithLabelValues("record").Inc()
	}

	return res, nil
}

// entryDeviceRef prefers the entry's own user object over the envelope's.
func entryDeviceRef(entry map[string]any, fallback *DeviceRef) *DeviceRef {
	if u, ok := entry["user"].(map[string]any); ok {
		ref := &DeviceRef{}
		ref.UserID, _ = u["user_id"].(string)
		ref.Provider, _ = u["provider"].(string)
		ref.ReferenceID, _ = u["reference_id"].(string)
		if ref.UserID != "" {
			return ref
		}
	}
	return fallback
}

func findEnrichment(entry map[string]any) map[string]any {
	for _, key := range EnrichmentContainers {
		if m, ok := entry[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// extractScores fills s from the enrichment object. A score outside 0..100 or
// not numeric is dropped. Contributor maps are kept whether or not their score
// is present.
func extractScores(ctx context.Context, enrichment map[string]any, s *models.Scores) {
	for _, alias := range metricAliases {
		var score *float64
		for _, key := range alias.scores {
			raw, present := enrichment[key]
			if !present || raw == nil {
				continue
			}
			v, ok := numeric(raw)
			if !ok || math.IsNaN(v) || v < 0 || v > 100 {
				logging.Ctx(ctx).Warn().Str("field", key).Interface("value", raw).Msg("Dropping invalid score")
				continue
			}
			score = models.Float(v)
			break
		}
		if score != nil {
			s.SetScore(alias.kind, score)
		}

		for _, key := range alias.contributors {
			if raw, ok := enrichment[key].(map[string]any); ok {
				s.SetContributors(alias.kind, normalizeContributors(raw))
				break
			}
		}
	}
}

// summaryDate picks the entry's calendar date, falling back to the ingestion date.
func summaryDate(entry map[string]any, receivedAt time.Time) string {
	for _, key := range DateKeys {
		if d, ok := datePart(entry[key]); ok {
			return d
		}
	}
	if meta, ok := entry["metadata"].(map[string]any); ok {
		for _, key := range MetadataDateKeys {
			if d, ok := datePart(meta[key]); ok {
				return d
			}
		}
	}
	return models.FormatDate(receivedAt)
}

// datePart returns the YYYY-MM-DD prefix of a date or timestamp string, as the
// provider reported it and without converting time zones.
func datePart(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < len(models.DateLayout) {
		return "", false
	}
	d := s[:len(models.DateLayout)]
	if _, err := models.ParseDate(d); err != nil {
		return "", false
	}
	return d, true
}
