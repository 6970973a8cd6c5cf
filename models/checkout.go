package models

// CreateCheckoutRequest starts a provider checkout session for one product.
type CreateCheckoutRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
}

// CheckoutSessionResponse is returned to the storefront so it can hand the
// buyer over to the payment provider.
type CheckoutSessionResponse struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// SelfFulfillRequest is sent by the buyer's browser right after checkout
// completes, before the asynchronous webhook arrives.
type SelfFulfillRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
