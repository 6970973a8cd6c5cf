package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"audiostore/logger"
	"audiostore/metrics"
	"audiostore/models"
	"audiostore/payment"
	"audiostore/services"
)

// CheckoutHandler starts provider checkout sessions and handles the buyer's
// own post-payment confirmation.
type CheckoutHandler struct {
	products    services.ProductService
	provider    payment.Provider
	fulfillment services.FulfillmentService
	publicURL   string
	metrics     *metrics.Metrics
}

// NewCheckoutHandler builds the handler.
func NewCheckoutHandler(products services.ProductService, provider payment.Provider, fulfillment services.FulfillmentService, publicURL string, m *metrics.Metrics) *CheckoutHandler {
	return &CheckoutHandler{
		products:    products,
		provider:    provider,
		fulfillment: fulfillment,
		publicURL:   publicURL,
		metrics:     m,
	}
}

// CreateSession opens a provider checkout session for one product.
// @Summary Create checkout session
// @Description Opens a payment-provider checkout session for a product
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body models.CreateCheckoutRequest true "Product to buy"
// @Success 201 {object} models.APIResponse{data=models.CheckoutSessionResponse} "Session created"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 404 {object} models.APIResponse "Product not found"
// @Failure 502 {object} models.APIResponse "Payment provider unavailable"
// @Router /api/checkout [post]
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}
	if req.ProductID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("A valid product_id is required", nil))
		return
	}

	product, err := h.products.Get(r.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Product not found", nil))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to load product", err))
		return
	}

	if !product.HasFile() {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ErrorResponse("Product has no downloadable file", nil))
		return
	}

	successURL := h.publicURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := h.publicURL + "/checkout/cancel"

	session, err := h.provider.CreateCheckoutSession(r.Context(), product, successURL, cancelURL)
	if err != nil {
		if errors.Is(err, payment.ErrProviderUnavailable) {
			h.metrics.ProviderError()
			logger.Error("Payment provider unavailable: %v", err)
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(models.ErrorResponse("Payment provider unavailable", nil))
			return
		}
		logger.Error("Failed to create checkout session: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to create checkout session", err))
		return
	}

	logger.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"product_id": product.ID,
	}).Info("Checkout session created")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Checkout session created", models.CheckoutSessionResponse{
		SessionID:    session.ID,
		ClientSecret: session.ClientSecret,
		RedirectURL:  session.URL,
	}))
}

// SelfFulfill lets the buyer's browser claim the download link right after
// payment, without waiting for the asynchronous webhook.
// @Summary Confirm checkout
// @Description Issues (or returns) the download link for a paid checkout session
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body models.SelfFulfillRequest true "Paid session"
// @Success 200 {object} models.APIResponse{data=models.DownloadLinkWithProduct} "Download link"
// @Failure 400 {object} models.APIResponse "Payment not completed"
// @Failure 404 {object} models.APIResponse "Session not found"
// @Failure 502 {object} models.APIResponse "Payment provider unavailable"
// @Router /api/checkout/confirm [post]
func (h *CheckoutHandler) SelfFulfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.SelfFulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	// The buyer already receives the link on-page; skip email here to avoid
	// double notification when the webhook also lands.
	result, err := h.fulfillment.Fulfill(r.Context(), req.SessionID, false)
	if err != nil {
		h.metrics.LinkIssued("self_fulfill", "error")
		writeFulfillError(w, err)
		return
	}

	h.metrics.LinkIssued("self_fulfill", "success")
	json.NewEncoder(w).Encode(models.SuccessResponse("Purchase fulfilled", result))
}
