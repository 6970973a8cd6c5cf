package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiostore/metrics"
	"audiostore/models"
	"audiostore/payment"
	"audiostore/services"
)

// fakeFulfillment records Fulfill calls and serves a canned result.
type fakeFulfillment struct {
	calls  []string
	notify []bool
	result models.DownloadLinkWithProduct
	err    error
}

func (f *fakeFulfillment) Fulfill(ctx context.Context, sessionID string, notify bool) (models.DownloadLinkWithProduct, error) {
	f.calls = append(f.calls, sessionID)
	f.notify = append(f.notify, notify)
	if f.err != nil {
		return models.DownloadLinkWithProduct{}, f.err
	}
	return f.result, nil
}

const handlerWebhookSecret = "whsec_handler_test"

func postWebhook(h *WebhookHandler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func newWebhookHandlerForTest(fulfillment *fakeFulfillment) *WebhookHandler {
	return NewWebhookHandler(fulfillment, handlerWebhookSecret, metrics.New(prometheus.NewRegistry()))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	fulfillment := &fakeFulfillment{}
	h := newWebhookHandlerForTest(fulfillment)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	t.Run("missing header", func(t *testing.T) {
		rec := postWebhook(h, payload, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := payment.SignPayload(payload, "whsec_wrong", time.Now())
		rec := postWebhook(h, payload, header)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := payment.SignPayload(payload, handlerWebhookSecret, time.Now().Add(-time.Hour))
		rec := postWebhook(h, payload, header)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	// No fulfillment attempt may happen for an unverified request.
	assert.Empty(t, fulfillment.calls)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	fulfillment := &fakeFulfillment{}
	h := newWebhookHandlerForTest(fulfillment)

	payload := []byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	header := payment.SignPayload(payload, handlerWebhookSecret, time.Now())

	rec := postWebhook(h, payload, header)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fulfillment.calls)
}

func TestWebhookFulfillsCompletedCheckout(t *testing.T) {
	fulfillment := &fakeFulfillment{
		result: models.DownloadLinkWithProduct{
			DownloadLink: models.DownloadLink{ID: "dl-test1", ProductID: 7},
		},
	}
	h := newWebhookHandlerForTest(fulfillment)

	payload := []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_ok","payment_status":"paid"}}}`)
	header := payment.SignPayload(payload, handlerWebhookSecret, time.Now())

	rec := postWebhook(h, payload, header)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fulfillment.calls, 1)
	assert.Equal(t, "cs_ok", fulfillment.calls[0])
	// The webhook path sends the buyer notification.
	assert.Equal(t, []bool{true}, fulfillment.notify)
}

func TestWebhookMapsFulfillmentErrors(t *testing.T) {
	payload := []byte(`{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"id":"cs_err"}}}`)
	header := payment.SignPayload(payload, handlerWebhookSecret, time.Now())

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"payment not completed", services.ErrPaymentNotCompleted, http.StatusBadRequest},
		{"missing metadata", services.ErrMissingProductMetadata, http.StatusBadRequest},
		{"session not found", payment.ErrSessionNotFound, http.StatusNotFound},
		{"provider unavailable", payment.ErrProviderUnavailable, http.StatusBadGateway},
		{"product not found", services.ErrProductNotFound, http.StatusNotFound},
		{"product has no file", services.ErrProductHasNoFile, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newWebhookHandlerForTest(&fakeFulfillment{err: tc.err})
			rec := postWebhook(h, payload, header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	h := newWebhookHandlerForTest(&fakeFulfillment{})

	payload := []byte(`{"id":"evt_5"}`)
	header := payment.SignPayload(payload, handlerWebhookSecret, time.Now())

	rec := postWebhook(h, payload, header)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsNonPOST(t *testing.T) {
	h := newWebhookHandlerForTest(&fakeFulfillment{})

	req := httptest.NewRequest(http.MethodGet, "/api/webhook", nil)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
