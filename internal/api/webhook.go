// ABOUTME: Webhook ingress for provider enrichment deliveries.
// ABOUTME: Size guard, optional signature check, parse, then the two-stage pipeline.
package api

import (
	"errors"
	"net/http"

	"github.com/harperreed/healthscore/internal/extract"
	"github.com/harperreed/healthscore/internal/guard"
	"github.com/harperreed/healthscore/internal/ingest"
	"github.com/harperreed/healthscore/internal/logging"
	"github.com/harperreed/healthscore/internal/metrics"
)

// SignatureHeader carries the delivery signature when a secret is configured.
const SignatureHeader = "X-Webhook-Signature"

type webhookResponse struct {
	Success  bool           `json:"success"`
	Degraded bool           `json:"degraded,omitempty"`
	Report   *ingest.Report `json:"report,omitempty"`
}

// Webhook handles POST /webhooks/wearables.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	receivedAt := h.now().UTC()
	defer r.Body.Close()

	body, err := h.cfg.Guard.ReadBody(r.Body, r.ContentLength)
	if err != nil {
		if errors.Is(err, guard.ErrPayloadTooLarge) {
			metrics.WebhookDeliveries.WithLabelValues("too_large").Inc()
			logging.Ctx(ctx).Warn().Err(err).Int64("content_length", r.ContentLength).Msg("Rejected oversized webhook")
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", nil)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}
	metrics.PayloadBytes.Observe(float64(len(body)))

	if h.cfg.Secret != "" {
		if err := guard.VerifySignature(h.cfg.Secret, r.Header.Get(SignatureHeader), body, receivedAt); err != nil {
			metrics.WebhookDeliveries.WithLabelValues("unauthorized").Inc()
			logging.Ctx(ctx).Warn().Err(err).Msg("Rejected webhook signature")
			respondError(w, http.StatusUnauthorized, "invalid signature", nil)
			return
		}
	}

	inspected, err := h.cfg.Guard.Inspect(body, r.ContentLength)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("too_large").Inc()
		logging.Ctx(ctx).Warn().Err(err).Int("bytes", len(body)).Msg("Rejected oversized webhook")
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large", nil)
		return
	}
	if inspected.Degraded {
		metrics.DegradedPayloads.Inc()
		logging.Ctx(ctx).Warn().
			Int64("original_bytes", inspected.OriginalSize).
			Int("forwarded_bytes", len(inspected.Body)).
			Int("stripped_keys", inspected.StrippedKeys).
			Msg("Degraded oversized webhook")
	}

	env, err := extract.Parse(inspected.Body)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "malformed payload", err)
		return
	}

	report, err := h.cfg.Pipeline.Process(ctx, env, receivedAt)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("storage_error").Inc()
		respondError(w, http.StatusInternalServerError, "failed to store enrichment", err)
		return
	}

	outcome := "ok"
	if report.Ignored {
		outcome = "ignored"
	}
	metrics.WebhookDeliveries.WithLabelValues(outcome).Inc()

	logging.Ctx(ctx).Info().
		Str("type", logging.Sanitize(env.Type)).
		Int("stored", report.Stored).
		Int("aggregated", report.Aggregated).
		Int("unmapped", report.Unmapped).
		Bool("degraded", inspected.Degraded).
		Msg("Processed webhook")

	respondJSON(w, http.StatusOK, webhookResponse{Success: true, Degraded: inspected.Degraded, Report: report})
}
