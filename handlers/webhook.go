package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"audiostore/logger"
	"audiostore/metrics"
	"audiostore/models"
	"audiostore/payment"
	"audiostore/services"
)

// signatureHeader carries the provider's webhook signature.
const signatureHeader = "Stripe-Signature"

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler fulfills purchases announced by provider webhooks.
type WebhookHandler struct {
	fulfillment services.FulfillmentService
	secret      string
	metrics     *metrics.Metrics
}

// NewWebhookHandler builds the handler.
func NewWebhookHandler(fulfillment services.FulfillmentService, webhookSecret string, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{fulfillment: fulfillment, secret: webhookSecret, metrics: m}
}

// Handle verifies and processes one webhook delivery.
// @Summary Payment webhook
// @Description Fulfills a completed checkout session announced by the payment provider
// @Tags payment
// @Accept json
// @Produce json
// @Success 200 {object} models.APIResponse "Processed or ignored"
// @Failure 400 {object} models.APIResponse "Bad signature or malformed event"
// @Failure 502 {object} models.APIResponse "Payment provider unavailable"
// @Router /api/webhook [post]
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.Webhook("read_error")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to read webhook body", err))
		return
	}

	// A bad signature is a forged or corrupted request: reject outright,
	// before any side effect.
	if err := payment.VerifySignature(payload, r.Header.Get(signatureHeader), h.secret, payment.DefaultSignatureTolerance); err != nil {
		h.metrics.Webhook("bad_signature")
		logger.WithFields(map[string]interface{}{
			"ip": r.RemoteAddr,
		}).Warn("Webhook signature verification failed")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid webhook signature", nil))
		return
	}

	event, err := payment.ParseEvent(payload)
	if err != nil {
		h.metrics.Webhook("malformed")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Malformed webhook event", err))
		return
	}

	if event.Type != payment.EventTypeCheckoutCompleted {
		h.metrics.Webhook("ignored")
		json.NewEncoder(w).Encode(models.SuccessResponse("Event ignored", nil))
		return
	}

	session, err := payment.SessionFromEvent(event)
	if err != nil {
		h.metrics.Webhook("malformed")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Malformed checkout session", err))
		return
	}

	start := time.Now()
	result, err := h.fulfillment.Fulfill(r.Context(), session.ID, true)
	if err != nil {
		h.metrics.Webhook("error")
		h.metrics.LinkIssued("webhook", "error")
		writeFulfillError(w, err)
		return
	}

	h.metrics.Webhook("fulfilled")
	h.metrics.LinkIssued("webhook", "success")
	logger.WithFields(map[string]interface{}{
		"session_id":       session.ID,
		"download_link_id": result.DownloadLink.ID,
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Webhook fulfillment completed")

	json.NewEncoder(w).Encode(models.SuccessResponse("Purchase fulfilled", map[string]string{
		"download_link_id": result.DownloadLink.ID,
	}))
}

// writeFulfillError maps fulfillment failures to the API status table.
func writeFulfillError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentNotCompleted):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Payment has not completed", nil))
	case errors.Is(err, services.ErrMissingProductMetadata):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Checkout session has no product reference", nil))
	case errors.Is(err, payment.ErrSessionNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Checkout session not found", nil))
	case errors.Is(err, payment.ErrProviderUnavailable):
		logger.Error("Payment provider unavailable: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(models.ErrorResponse("Payment provider unavailable", nil))
	default:
		writeIssueError(w, err)
	}
}
