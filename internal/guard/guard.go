// ABOUTME: Payload Guard that bounds webhook bodies before they are parsed.
// ABOUTME: Rejects above the hard limit and strips bulky sample arrays above the soft limit.
package guard

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/goccy/go-json"
	"github.com/harperreed/healthscore/internal/extract"
)

const (
	// DefaultSoftLimit is the size above which payloads are degraded.
	DefaultSoftLimit int64 = 30 << 20
	// DefaultHardLimit is the size above which payloads are rejected outright.
	DefaultHardLimit int64 = 50 << 20
)

// ErrPayloadTooLarge is returned for bodies over the hard limit, and for bodies
// over the soft limit that cannot be parsed for stripping.
var ErrPayloadTooLarge = errors.New("payload too large")

// heavySampleKeys carry per-sample arrays that are never needed for scoring.
var heavySampleKeys = map[string]bool{
	"heart_rate_data":           true,
	"heart_rate_samples":        true,
	"hr_samples":                true,
	"hrv_samples":               true,
	"hrv_samples_rmssd":         true,
	"hrv_samples_sdnn":          true,
	"hrv_data":                  true,
	"oxygen_saturation_data":    true,
	"oxygen_saturation_samples": true,
	"saturation_samples":        true,
	"spo2_samples":              true,
	"breath_samples":            true,
	"respiration_samples":       true,
	"snoring_samples":           true,
	"stress_samples":            true,
	"hypnogram_samples":         true,
	"movement_samples":          true,
	"temperature_samples":       true,
	"samples":                   true,
	"detailed":                  true,
}

// Guard enforces payload size limits.
type Guard struct {
	SoftLimit int64
	HardLimit int64
}

// New returns a guard with the given limits; zero values select the defaults.
func New(soft, hard int64) *Guard {
	if soft <= 0 {
		soft = DefaultSoftLimit
	}
	if hard <= 0 {
		hard = DefaultHardLimit
	}
	return &Guard{SoftLimit: soft, HardLimit: hard}
}

// Result is the body to forward to the extractor.
type Result struct {
	Body         []byte
	Degraded     bool
	OriginalSize int64
	StrippedKeys int
}

// ReadBody reads at most HardLimit+1 bytes, so a body without a declared length
// that exceeds the limit is still rejected without buffering all of it.
func (g *Guard) ReadBody(r io.Reader, declared int64) ([]byte, error) {
	if declared > g.HardLimit {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrPayloadTooLarge, declared, g.HardLimit)
	}
	body, err := io.ReadAll(io.LimitReader(r, g.HardLimit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > g.HardLimit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrPayloadTooLarge, g.HardLimit)
	}
	return body, nil
}

// Inspect applies the size policy. It never persists anything.
func (g *Guard) Inspect(body []byte, declared int64) (*Result, error) {
	size := int64(len(body))
	if declared > size {
		size = declared
	}

	if size > g.HardLimit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, size, g.HardLimit)
	}
	if size <= g.SoftLimit {
		return &Result{Body: body, OriginalSize: size}, nil
	}

	stripped, n, err := degrade(body)
	if err != nil {
		return nil, fmt.Errorf("%w: degraded parse: %w", ErrPayloadTooLarge, err)
	}
	return &Result{Body: stripped, Degraded: true, OriginalSize: size, StrippedKeys: n}, nil
}

// degrade keeps the envelope's type and user, and from each data entry only
// the device reference, date-bearing keys and the enrichment object, with
// heavy sample keys removed at any depth. It returns the number of keys dropped.
func degrade(body []byte) ([]byte, int, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, err
	}
	if envelope == nil {
		return nil, 0, errors.New("envelope is not an object")
	}

	dropped := 0
	out := make(map[string]any, 3)
	for key, v := range envelope {
		switch key {
		case "type", "user":
			out[key] = v
		case "data":
		default:
			dropped++
		}
	}

	if raw, ok := envelope["data"]; ok && raw != nil {
		entries, ok := raw.([]any)
		if !ok {
			return nil, 0, errors.New("data is not an array")
		}
		kept := make([]any, 0, len(entries))
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				dropped++
				continue
			}
			trimmed, n := trimEntry(entry)
			dropped += n
			kept = append(kept, trimmed)
		}
		out["data"] = kept
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, 0, err
	}
	return encoded, dropped, nil
}

func trimEntry(entry map[string]any) (map[string]any, int) {
	keep := map[string]bool{"user": true, "metadata": true}
	for _, k := range extract.DateKeys {
		keep[k] = true
	}
	for _, k := range extract.EnrichmentContainers {
		keep[k] = true
	}

	out := make(map[string]any, len(keep))
	dropped := 0
	for k, v := range entry {
		if !keep[k] {
			dropped++
			continue
		}
		if k == "metadata" {
			meta, n := trimMetadata(v)
			dropped += n
			out[k] = meta
			continue
		}
		out[k] = stripHeavy(v, &dropped)
	}
	return out, dropped
}

// trimMetadata keeps only the timestamps the extractor reads dates from.
func trimMetadata(v any) (any, int) {
	meta, ok := v.(map[string]any)
	if !ok {
		return nil, 1
	}
	out := make(map[string]any, len(extract.MetadataDateKeys))
	dropped := 0
	for k, mv := range meta {
		if slices.Contains(extract.MetadataDateKeys, k) {
			out[k] = mv
		} else {
			dropped++
		}
	}
	return out, dropped
}

func stripHeavy(v any, dropped *int) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if heavySampleKeys[k] {
				delete(t, k)
				*dropped++
				continue
			}
			t[k] = stripHeavy(child, dropped)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = stripHeavy(child, dropped)
		}
		return t
	}
	return v
}
