package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiostore/config"
	"audiostore/logger"
	"audiostore/models"
)

var (
	// ErrProviderUnavailable is returned when the payment provider cannot be
	// reached within the request timeout or answers with a server error.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrSessionNotFound is returned when the provider does not know the
	// checkout session.
	ErrSessionNotFound = errors.New("checkout session not found")
)

// CheckoutSession is the provider-side purchase record this system consumes.
// Metadata carries the product reference planted at session creation.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"` // "paid", "unpaid", ...
	ClientSecret  string            `json:"client_secret"`
	URL           string            `json:"url"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
}

// Paid reports whether the session's payment completed.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// Provider is the narrow payment-provider surface the fulfillment path needs.
type Provider interface {
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, product models.Product, successURL, cancelURL string) (*CheckoutSession, error)
}

// Client talks to a Stripe-style checkout REST API with bounded timeouts.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds a provider client from configuration.
func NewClient(cfg config.PaymentConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RetrieveSession fetches a checkout session by id.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	endpoint := fmt.Sprintf("%s/checkout/sessions/%s", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.doSession(req)
}

// CreateCheckoutSession opens a provider checkout session for one product.
// The product id is planted in session metadata so fulfillment can recover it
// from the webhook event later.
func (c *Client) CreateCheckoutSession(ctx context.Context, product models.Product, successURL, cancelURL string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", product.Name)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(math.Round(product.Price*100)), 10))
	form.Set("metadata[product_id]", strconv.FormatInt(product.ID, 10))

	endpoint := c.baseURL + "/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Provider-side dedup for retried creates.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	return c.doSession(req)
}

func (c *Client) doSession(req *http.Request) (*CheckoutSession, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"url":   req.URL.String(),
			"error": err.Error(),
		}).Error("Payment provider request failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSessionNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("payment provider rejected request: status %d: %s", resp.StatusCode, body)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &session, nil
}
