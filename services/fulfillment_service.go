package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"audiostore/logger"
	"audiostore/mailer"
	"audiostore/models"
	"audiostore/payment"
)

var (
	// ErrPaymentNotCompleted is returned when the purchase session exists but
	// its payment has not completed; a link is never issued for an unpaid
	// session.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrMissingProductMetadata is returned when a checkout session carries
	// no product reference.
	ErrMissingProductMetadata = errors.New("checkout session has no product metadata")
)

// FulfillmentOptions control the limits applied to purchase-issued links.
type FulfillmentOptions struct {
	MaxDownloadCount   int
	ExpireAfterSeconds int
}

// FulfillmentService bridges a completed purchase session into a download
// link. Both the provider webhook and the buyer's self-service confirmation
// converge on Fulfill; only the webhook path notifies by email.
type FulfillmentService interface {
	Fulfill(ctx context.Context, sessionID string, notify bool) (models.DownloadLinkWithProduct, error)
}

type fulfillmentService struct {
	provider payment.Provider
	links    DownloadLinkService
	sender   mailer.Sender
	opts     FulfillmentOptions
}

// NewFulfillmentService wires the fulfillment path. sender may be nil when no
// mailer is configured; notification is then skipped.
func NewFulfillmentService(provider payment.Provider, links DownloadLinkService, sender mailer.Sender, opts FulfillmentOptions) FulfillmentService {
	return &fulfillmentService{
		provider: provider,
		links:    links,
		sender:   sender,
		opts:     opts,
	}
}

func (s *fulfillmentService) Fulfill(ctx context.Context, sessionID string, notify bool) (models.DownloadLinkWithProduct, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.DownloadLinkWithProduct{}, fmt.Errorf("%w: session id is required", ErrInvalidLinkInput)
	}

	session, err := s.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return models.DownloadLinkWithProduct{}, err
	}

	if !session.Paid() {
		return models.DownloadLinkWithProduct{}, ErrPaymentNotCompleted
	}

	productID, err := productIDFromSession(session)
	if err != nil {
		return models.DownloadLinkWithProduct{}, err
	}

	link, product, err := s.links.IssueOrGet(ctx, models.CreateDownloadLinkRequest{
		ProductID:          productID,
		SessionID:          session.ID,
		MaxDownloadCount:   s.opts.MaxDownloadCount,
		ExpireAfterSeconds: s.opts.ExpireAfterSeconds,
		CreatedBy: map[string]interface{}{
			"session_id":     session.ID,
			"customer_email": session.CustomerDetails.Email,
			"customer_name":  session.CustomerDetails.Name,
		},
	})
	if err != nil {
		return models.DownloadLinkWithProduct{}, err
	}

	if notify {
		s.sendNotification(session.CustomerDetails.Email, product, link)
	}

	return models.DownloadLinkWithProduct{
		DownloadLink: link,
		Product:      product.Public(),
	}, nil
}

// sendNotification emails the buyer their download link. Failures are logged
// and swallowed: the purchase is already fulfilled.
func (s *fulfillmentService) sendNotification(to string, product models.Product, link models.DownloadLink) {
	if s.sender == nil || to == "" {
		return
	}

	subject := fmt.Sprintf("Your download is ready: %s", product.Name)
	body := fmt.Sprintf(
		"Thank you for your purchase!\n\n"+
			"You can download %s here:\n%s\n\n"+
			"Keep this link private; it is tied to your purchase.\n",
		product.Name, link.DownloadURL,
	)

	if err := s.sender.Send(to, subject, body); err != nil {
		logger.WithFields(map[string]interface{}{
			"to":               to,
			"download_link_id": link.ID,
			"error":            err.Error(),
		}).Warn("Failed to send fulfillment notification")
	}
}

func productIDFromSession(session *payment.CheckoutSession) (int64, error) {
	raw, ok := session.Metadata["product_id"]
	if !ok || raw == "" {
		return 0, ErrMissingProductMetadata
	}
	productID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || productID <= 0 {
		return 0, ErrMissingProductMetadata
	}
	return productID, nil
}
