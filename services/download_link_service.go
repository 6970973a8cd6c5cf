package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"audiostore/logger"
	"audiostore/models"
	"audiostore/utils"
)

var (
	// ErrProductNotFound is returned when the referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductHasNoFile is returned when the product has no storage key to sign.
	ErrProductHasNoFile = errors.New("product has no file")
	// ErrInvalidLinkInput is returned for malformed issuance parameters.
	ErrInvalidLinkInput = errors.New("invalid download link input")
	// ErrLinkNotFound is returned when a download link does not exist.
	ErrLinkNotFound = errors.New("download link not found")
	// ErrQuotaExceeded is returned when the download quota has been consumed.
	ErrQuotaExceeded = errors.New("download quota exceeded")
	// ErrLinkExpired is returned when the link's time-to-live has elapsed.
	ErrLinkExpired = errors.New("download link expired")
	// ErrNoSignedURL is returned when a link carries no stored signed URL.
	ErrNoSignedURL = errors.New("download link has no signed url")
	// ErrInvalidToken is returned when a redirect token fails verification.
	ErrInvalidToken = utils.ErrInvalidDownloadToken
)

// SignedURLIssuer is the object-storage surface the issuance path needs.
type SignedURLIssuer interface {
	PresignGet(ctx context.Context, objectKey string, ttl time.Duration, downloadFilename string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// DownloadLinkService is the single entry point for turning a purchase or an
// admin request into a usable download link, and for resolving redirect
// tokens back into signed URLs.
type DownloadLinkService interface {
	// IssueOrGet creates a download link, or returns the existing one when
	// the request carries a session id that was already fulfilled.
	IssueOrGet(ctx context.Context, req models.CreateDownloadLinkRequest) (models.DownloadLink, models.Product, error)
	Get(ctx context.Context, id string) (models.DownloadLink, models.Product, error)
	List(ctx context.Context, page, pageSize int) ([]models.DownloadLink, int, error)
	Delete(ctx context.Context, id string) error
	// ResolveRedirect verifies a redirect token, enforces quota and expiry,
	// consumes one download slot, and returns the stored signed URL.
	ResolveRedirect(ctx context.Context, token string) (string, error)
}

type downloadLinkService struct {
	db         SQLExecutor
	signer     SignedURLIssuer
	publicURL  string
	defaultTTL time.Duration
	now        func() time.Time
}

// NewDownloadLinkService builds the issuance service. defaultTTL bounds the
// raw presigned URL lifetime for links that never expire themselves.
func NewDownloadLinkService(db SQLExecutor, signer SignedURLIssuer, publicURL string, defaultTTL time.Duration) DownloadLinkService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &downloadLinkService{
		db:         db,
		signer:     signer,
		publicURL:  strings.TrimRight(publicURL, "/"),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

const downloadLinkColumns = `id, product_id, session_id, signed_s3_url, download_link,
	download_count, max_download_count, expire_after_seconds, created_by, created_at`

func (s *downloadLinkService) IssueOrGet(ctx context.Context, req models.CreateDownloadLinkRequest) (models.DownloadLink, models.Product, error) {
	sessionID := strings.TrimSpace(req.SessionID)

	// Idempotency: a session that already produced a link gets that link
	// back unchanged, however many times the fulfillment trigger retries.
	if sessionID != "" {
		link, err := s.getBySessionID(ctx, sessionID)
		if err == nil {
			product, perr := s.getProduct(ctx, link.ProductID)
			if perr != nil {
				return models.DownloadLink{}, models.Product{}, perr
			}
			return link, product, nil
		}
		if !errors.Is(err, ErrLinkNotFound) {
			return models.DownloadLink{}, models.Product{}, err
		}
	}

	// Validation happens before any side effect.
	if req.ProductID <= 0 {
		return models.DownloadLink{}, models.Product{}, fmt.Errorf("%w: product_id is required", ErrInvalidLinkInput)
	}
	if req.MaxDownloadCount < 0 {
		return models.DownloadLink{}, models.Product{}, fmt.Errorf("%w: max_download_count cannot be negative", ErrInvalidLinkInput)
	}
	if req.ExpireAfterSeconds < 0 {
		return models.DownloadLink{}, models.Product{}, fmt.Errorf("%w: expire_after_seconds cannot be negative", ErrInvalidLinkInput)
	}

	product, err := s.getProduct(ctx, req.ProductID)
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}
	if !product.HasFile() {
		return models.DownloadLink{}, models.Product{}, ErrProductHasNoFile
	}

	// An unbounded link must not imply an unbounded raw URL, so the signed
	// URL falls back to the default TTL when the link never expires.
	urlTTL := s.defaultTTL
	if req.ExpireAfterSeconds > 0 {
		urlTTL = time.Duration(req.ExpireAfterSeconds) * time.Second
	}

	signedURL, err := s.signer.PresignGet(ctx, product.FileURL, urlTTL, downloadFilename(product))
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}

	// The id is generated up front so the redirect token can be computed
	// before the single insert; no reader ever observes a tokenless row.
	id, err := utils.GenerateID("dl")
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}

	tokenTTL := 365 * 24 * time.Hour
	if req.ExpireAfterSeconds > 0 {
		tokenTTL = time.Duration(req.ExpireAfterSeconds) * time.Second
	}
	token, err := utils.GenerateDownloadToken(product.ID, id, tokenTTL)
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}
	downloadURL := fmt.Sprintf("%s/api/download?token=%s", s.publicURL, url.QueryEscape(token))

	createdBy := req.CreatedBy
	if createdBy == nil {
		createdBy = map[string]interface{}{}
	}
	createdByJSON, err := json.Marshal(createdBy)
	if err != nil {
		return models.DownloadLink{}, models.Product{}, fmt.Errorf("encode created_by: %w", err)
	}

	var sessionValue *string
	if sessionID != "" {
		sessionValue = &sessionID
	}

	now := utils.FormatDateTimeForDB(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO download_links (`+downloadLinkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, product.ID, sessionValue, signedURL, downloadURL,
		0, req.MaxDownloadCount, req.ExpireAfterSeconds, string(createdByJSON), now,
	)
	if err != nil {
		// A unique violation on session_id means a concurrent fulfillment
		// won the race; its row is the answer, not an error.
		if sessionID != "" && isDuplicateKeyError(err) {
			logger.WithFields(map[string]interface{}{
				"session_id": sessionID,
			}).Info("Lost issuance race, reusing existing download link")
			link, ferr := s.getBySessionID(ctx, sessionID)
			if ferr != nil {
				return models.DownloadLink{}, models.Product{}, ferr
			}
			return link, product, nil
		}
		return models.DownloadLink{}, models.Product{}, fmt.Errorf("insert download link: %w", err)
	}

	link := models.DownloadLink{
		ID:                 id,
		ProductID:          product.ID,
		SessionID:          sessionValue,
		SignedS3URL:        signedURL,
		DownloadURL:        downloadURL,
		DownloadCount:      0,
		MaxDownloadCount:   req.MaxDownloadCount,
		ExpireAfterSeconds: req.ExpireAfterSeconds,
		CreatedBy:          createdByJSON,
		CreatedAt:          now,
	}

	return link, product, nil
}

func (s *downloadLinkService) Get(ctx context.Context, id string) (models.DownloadLink, models.Product, error) {
	link, err := s.getByID(ctx, id)
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}
	product, err := s.getProduct(ctx, link.ProductID)
	if err != nil {
		return models.DownloadLink{}, models.Product{}, err
	}
	return link, product, nil
}

func (s *downloadLinkService) List(ctx context.Context, page, pageSize int) ([]models.DownloadLink, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM download_links").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+downloadLinkColumns+` FROM download_links
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	links := make([]models.DownloadLink, 0)
	for rows.Next() {
		link, err := scanDownloadLink(rows)
		if err != nil {
			return nil, 0, err
		}
		links = append(links, link)
	}

	return links, total, rows.Err()
}

func (s *downloadLinkService) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM download_links WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (s *downloadLinkService) ResolveRedirect(ctx context.Context, token string) (string, error) {
	claims, err := utils.ValidateDownloadToken(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	link, err := s.getByID(ctx, claims.DownloadLinkID)
	if err != nil {
		return "", err
	}

	// A token is bound to exactly one (product, link) pair.
	if link.ProductID != claims.ProductID {
		return "", ErrInvalidToken
	}

	if link.QuotaExhausted() {
		return "", ErrQuotaExceeded
	}
	if link.IsExpired(s.now()) {
		return "", ErrLinkExpired
	}

	// Compare-and-increment: two concurrent redirects must never both take
	// the last remaining slot.
	result, err := s.db.ExecContext(ctx, `
		UPDATE download_links
		SET download_count = download_count + 1
		WHERE id = ? AND (max_download_count = 0 OR download_count < max_download_count)`,
		link.ID,
	)
	if err != nil {
		return "", fmt.Errorf("increment download count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", ErrQuotaExceeded
	}

	if link.SignedS3URL == "" {
		return "", ErrNoSignedURL
	}

	return link.SignedS3URL, nil
}

func (s *downloadLinkService) getProduct(ctx context.Context, id int64) (models.Product, error) {
	var p models.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, category, tags, image_url, file_url, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Tags, &p.ImageURL, &p.FileURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, ErrProductNotFound
		}
		return models.Product{}, err
	}
	return p, nil
}

func (s *downloadLinkService) getByID(ctx context.Context, id string) (models.DownloadLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+downloadLinkColumns+` FROM download_links WHERE id = ?`, id)
	return scanDownloadLinkRow(row)
}

func (s *downloadLinkService) getBySessionID(ctx context.Context, sessionID string) (models.DownloadLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+downloadLinkColumns+` FROM download_links WHERE session_id = ?`, sessionID)
	return scanDownloadLinkRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDownloadLink(scanner rowScanner) (models.DownloadLink, error) {
	var (
		link      models.DownloadLink
		sessionID sql.NullString
		createdBy string
	)
	err := scanner.Scan(
		&link.ID, &link.ProductID, &sessionID, &link.SignedS3URL, &link.DownloadURL,
		&link.DownloadCount, &link.MaxDownloadCount, &link.ExpireAfterSeconds,
		&createdBy, &link.CreatedAt,
	)
	if err != nil {
		return models.DownloadLink{}, err
	}
	if sessionID.Valid {
		link.SessionID = &sessionID.String
	}
	link.CreatedBy = json.RawMessage(createdBy)
	return link, nil
}

func scanDownloadLinkRow(row *sql.Row) (models.DownloadLink, error) {
	link, err := scanDownloadLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DownloadLink{}, ErrLinkNotFound
		}
		return models.DownloadLink{}, err
	}
	return link, nil
}

// downloadFilename derives the attachment filename buyers see, keeping the
// stored object's extension.
func downloadFilename(product models.Product) string {
	ext := path.Ext(product.FileURL)
	name := strings.TrimSpace(product.Name)
	if name == "" {
		return path.Base(product.FileURL)
	}
	return name + ext
}

// isDuplicateKeyError matches unique-constraint violations across the sqlite
// and mysql drivers.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "duplicate entry")
}
