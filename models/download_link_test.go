package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"audiostore/utils"
)

func TestDownloadLinkExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero expiry never expires", func(t *testing.T) {
		link := DownloadLink{
			CreatedAt:          utils.FormatDateTimeForDB(now.Add(-100 * 24 * time.Hour)),
			ExpireAfterSeconds: 0,
		}
		assert.True(t, link.ExpiresAt().IsZero())
		assert.False(t, link.IsExpired(now))
	})

	t.Run("inside the window", func(t *testing.T) {
		link := DownloadLink{
			CreatedAt:          utils.FormatDateTimeForDB(now.Add(-30 * time.Minute)),
			ExpireAfterSeconds: 3600,
		}
		assert.False(t, link.IsExpired(now))
	})

	t.Run("past the window", func(t *testing.T) {
		link := DownloadLink{
			CreatedAt:          utils.FormatDateTimeForDB(now.Add(-2 * time.Hour)),
			ExpireAfterSeconds: 3600,
		}
		assert.True(t, link.IsExpired(now))
	})
}

func TestDownloadLinkQuota(t *testing.T) {
	t.Run("zero max is unlimited", func(t *testing.T) {
		link := DownloadLink{DownloadCount: 100000, MaxDownloadCount: 0}
		assert.False(t, link.QuotaExhausted())
	})

	t.Run("below the limit", func(t *testing.T) {
		link := DownloadLink{DownloadCount: 4, MaxDownloadCount: 5}
		assert.False(t, link.QuotaExhausted())
	})

	t.Run("at the limit", func(t *testing.T) {
		link := DownloadLink{DownloadCount: 5, MaxDownloadCount: 5}
		assert.True(t, link.QuotaExhausted())
	})
}
