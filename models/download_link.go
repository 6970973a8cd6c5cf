package models

import (
	"encoding/json"
	"time"

	"audiostore/utils"
)

// DownloadLink is a grant authorizing a bounded number of downloads of one
// product, tied to at most one purchase session.
type DownloadLink struct {
	ID                 string          `json:"id" db:"id"`
	ProductID          int64           `json:"product_id" db:"product_id"`
	SessionID          *string         `json:"session_id,omitempty" db:"session_id"`
	SignedS3URL        string          `json:"-" db:"signed_s3_url"`
	DownloadURL        string          `json:"download_link" db:"download_link"`
	DownloadCount      int             `json:"download_count" db:"download_count"`
	MaxDownloadCount   int             `json:"max_download_count" db:"max_download_count"` // 0 = unlimited
	ExpireAfterSeconds int             `json:"expire_after_seconds" db:"expire_after_seconds"` // 0 = no expiry
	CreatedBy          json.RawMessage `json:"created_by" db:"created_by"` // opaque purchaser context
	CreatedAt          string          `json:"created_at" db:"created_at"`
}

// ExpiresAt returns the absolute expiry time, or the zero time when the link
// never expires.
func (d *DownloadLink) ExpiresAt() time.Time {
	if d.ExpireAfterSeconds <= 0 {
		return time.Time{}
	}
	created, err := utils.ParseDBDate(d.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return created.Add(time.Duration(d.ExpireAfterSeconds) * time.Second)
}

// IsExpired reports whether the link's own time-to-live has elapsed.
func (d *DownloadLink) IsExpired(now time.Time) bool {
	expiresAt := d.ExpiresAt()
	return !expiresAt.IsZero() && now.After(expiresAt)
}

// QuotaExhausted reports whether the download quota has been consumed.
func (d *DownloadLink) QuotaExhausted() bool {
	return d.MaxDownloadCount > 0 && d.DownloadCount >= d.MaxDownloadCount
}

// CreateDownloadLinkRequest is the grant issuance payload. SessionID is set
// for payment-triggered issuance and empty for manual admin creation.
type CreateDownloadLinkRequest struct {
	ProductID          int64                  `json:"product_id" binding:"required"`
	SessionID          string                 `json:"session_id"`
	MaxDownloadCount   int                    `json:"max_download_count"`
	ExpireAfterSeconds int                    `json:"expire_after_seconds"`
	CreatedBy          map[string]interface{} `json:"created_by"`
}

// DownloadLinkWithProduct pairs a grant with its product for API responses.
type DownloadLinkWithProduct struct {
	DownloadLink DownloadLink  `json:"download_link"`
	Product      PublicProduct `json:"product"`
}
