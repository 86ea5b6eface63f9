// ABOUTME: Tests for the metric recording helpers.
// ABOUTME: Reads counter values back with prometheus testutil.
package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAggregation(t *testing.T) {
	tests := []struct {
		name    string
		written bool
		err     error
		label   string
	}{
		{"written", true, nil, "written"},
		{"empty", false, nil, "empty"},
		{"error", false, errors.New("disk full"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(AggregationRuns.WithLabelValues(tt.label))
			RecordAggregation(tt.written, 5*time.Millisecond, tt.err)
			after := testutil.ToFloat64(AggregationRuns.WithLabelValues(tt.label))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordUpsert(t *testing.T) {
	okBefore := testutil.ToFloat64(EnrichmentUpserts.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(EnrichmentUpserts.WithLabelValues("error"))

	RecordUpsert(nil)
	RecordUpsert(errors.New("locked"))
	RecordUpsert(nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(EnrichmentUpserts.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(EnrichmentUpserts.WithLabelValues("error")))
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("POST", "/webhooks/wearables", "200", 20*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(APIRequestDuration, "healthscore_http_request_duration_seconds"), 1)
}
