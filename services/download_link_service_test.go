package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"audiostore/database"
	"audiostore/models"
	"audiostore/utils"
)

// fakeSigner returns deterministic URLs without talking to object storage.
type fakeSigner struct {
	mu      sync.Mutex
	signed  int
	deleted []string
	fail    error
}

func (f *fakeSigner) PresignGet(ctx context.Context, objectKey string, ttl time.Duration, downloadFilename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.signed++
	return fmt.Sprintf("https://storage.test/%s?sig=%d", objectKey, f.signed), nil
}

func (f *fakeSigner) DeleteObject(ctx context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectKey)
	return nil
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory sqlite is per-connection; keep a single one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, database.CreateTables(db, "sqlite"))
	return db
}

func insertTestProduct(t *testing.T, db *sql.DB, name, fileURL string) int64 {
	t.Helper()
	now := utils.FormatDateTimeForDB(utils.NowUTC())
	result, err := db.Exec(`
		INSERT INTO products (name, description, price, category, tags, image_url, file_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, "test product", 9.99, "samples", "", "", fileURL, now, now,
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func newTestLinkService(t *testing.T, db *sql.DB) DownloadLinkService {
	t.Helper()
	return NewDownloadLinkService(NewSQLExecutor(db), &fakeSigner{}, "http://localhost:8080", time.Hour)
}

func TestIssueOrGetManualGrant(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "Drum Kit Vol. 1", "audio/drum-kit-1.zip")

	link, product, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
		ProductID:        productID,
		MaxDownloadCount: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, productID, product.ID)
	assert.NotEmpty(t, link.ID)
	assert.Nil(t, link.SessionID)
	assert.Equal(t, 0, link.DownloadCount)
	assert.Equal(t, 3, link.MaxDownloadCount)
	assert.Contains(t, link.DownloadURL, "http://localhost:8080/api/download?token=")
	assert.NotEmpty(t, link.SignedS3URL)

	// The embedded token must verify and bind to this link.
	token := link.DownloadURL[len("http://localhost:8080/api/download?token="):]
	claims, err := utils.ValidateDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, link.ID, claims.DownloadLinkID)
	assert.Equal(t, productID, claims.ProductID)
}

func TestIssueOrGetValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)

	t.Run("missing product id", func(t *testing.T) {
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{})
		assert.ErrorIs(t, err, ErrInvalidLinkInput)
	})

	t.Run("negative quota", func(t *testing.T) {
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
			ProductID:        1,
			MaxDownloadCount: -1,
		})
		assert.ErrorIs(t, err, ErrInvalidLinkInput)
	})

	t.Run("negative expiry", func(t *testing.T) {
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
			ProductID:          1,
			ExpireAfterSeconds: -1,
		})
		assert.ErrorIs(t, err, ErrInvalidLinkInput)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
			ProductID: 9999,
		})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("product without file", func(t *testing.T) {
		productID := insertTestProduct(t, db, "Coming Soon", "")
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
			ProductID: productID,
		})
		assert.ErrorIs(t, err, ErrProductHasNoFile)
	})
}

func TestIssueOrGetSessionIdempotency(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "Synth Pack", "audio/synth-pack.zip")

	req := models.CreateDownloadLinkRequest{
		ProductID:        productID,
		SessionID:        "cs_test_123",
		MaxDownloadCount: 5,
	}

	first, _, err := svc.IssueOrGet(context.Background(), req)
	require.NoError(t, err)

	second, _, err := svc.IssueOrGet(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.DownloadURL, second.DownloadURL)

	// Exactly one row exists for the session.
	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM download_links WHERE session_id = ?", "cs_test_123",
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIssueOrGetConcurrentSameSession(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "Vocal Chops", "audio/vocal-chops.zip")

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			link, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
				ProductID: productID,
				SessionID: "cs_race_1",
			})
			ids[i], errs[i] = link.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM download_links WHERE session_id = ?", "cs_race_1",
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIssueOrGetDistinctSessionsGetDistinctLinks(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "Bass Loops", "audio/bass-loops.zip")

	a, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
		ProductID: productID, SessionID: "cs_a",
	})
	require.NoError(t, err)

	b, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
		ProductID: productID, SessionID: "cs_b",
	})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestIssueOrGetStorageFailureLeavesNoRow(t *testing.T) {
	db := newTestDB(t)
	signer := &fakeSigner{fail: fmt.Errorf("presign exploded")}
	svc := NewDownloadLinkService(NewSQLExecutor(db), signer, "http://localhost:8080", time.Hour)
	productID := insertTestProduct(t, db, "Pad Textures", "audio/pads.zip")

	_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
		ProductID: productID,
		SessionID: "cs_fail",
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM download_links").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestResolveRedirect(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "FX Library", "audio/fx.zip")

	issue := func(t *testing.T, req models.CreateDownloadLinkRequest) (models.DownloadLink, string) {
		t.Helper()
		req.ProductID = productID
		link, _, err := svc.IssueOrGet(context.Background(), req)
		require.NoError(t, err)
		token := link.DownloadURL[len("http://localhost:8080/api/download?token="):]
		return link, token
	}

	t.Run("quota enforced across redirects", func(t *testing.T) {
		link, token := issue(t, models.CreateDownloadLinkRequest{MaxDownloadCount: 2})

		for i := 0; i < 2; i++ {
			url, err := svc.ResolveRedirect(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, link.SignedS3URL, url)
		}

		_, err := svc.ResolveRedirect(context.Background(), token)
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		var count int
		require.NoError(t, db.QueryRow(
			"SELECT download_count FROM download_links WHERE id = ?", link.ID,
		).Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("unlimited link never exhausts", func(t *testing.T) {
		_, token := issue(t, models.CreateDownloadLinkRequest{})

		for i := 0; i < 10; i++ {
			_, err := svc.ResolveRedirect(context.Background(), token)
			require.NoError(t, err)
		}
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		_, err := svc.ResolveRedirect(context.Background(), "garbage")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token for deleted link", func(t *testing.T) {
		link, token := issue(t, models.CreateDownloadLinkRequest{})
		require.NoError(t, svc.Delete(context.Background(), link.ID))

		_, err := svc.ResolveRedirect(context.Background(), token)
		assert.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("token bound to wrong product rejected", func(t *testing.T) {
		link, _ := issue(t, models.CreateDownloadLinkRequest{})

		forged, err := utils.GenerateDownloadToken(productID+100, link.ID, time.Hour)
		require.NoError(t, err)

		_, err = svc.ResolveRedirect(context.Background(), forged)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired link answers expired", func(t *testing.T) {
		link, token := issue(t, models.CreateDownloadLinkRequest{ExpireAfterSeconds: 3600})

		// Age the row past its expiry window.
		aged := utils.FormatDateTimeForDB(utils.NowUTC().Add(-2 * time.Hour))
		_, err := db.Exec("UPDATE download_links SET created_at = ? WHERE id = ?", aged, link.ID)
		require.NoError(t, err)

		_, err = svc.ResolveRedirect(context.Background(), token)
		assert.ErrorIs(t, err, ErrLinkExpired)
	})
}

func TestResolveRedirectConcurrentQuota(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "One Shot", "audio/one-shot.zip")

	link, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
		ProductID:        productID,
		MaxDownloadCount: 1,
	})
	require.NoError(t, err)
	token := link.DownloadURL[len("http://localhost:8080/api/download?token="):]

	const workers = 6
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ResolveRedirect(context.Background(), token)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrQuotaExceeded)
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int
	require.NoError(t, db.QueryRow(
		"SELECT download_count FROM download_links WHERE id = ?", link.ID,
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDownloadLinkListAndDelete(t *testing.T) {
	db := newTestDB(t)
	svc := newTestLinkService(t, db)
	productID := insertTestProduct(t, db, "Loop Pack", "audio/loops.zip")

	for i := 0; i < 3; i++ {
		_, _, err := svc.IssueOrGet(context.Background(), models.CreateDownloadLinkRequest{
			ProductID: productID,
			SessionID: fmt.Sprintf("cs_list_%d", i),
		})
		require.NoError(t, err)
	}

	links, total, err := svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, links, 3)

	require.NoError(t, svc.Delete(context.Background(), links[0].ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), links[0].ID), ErrLinkNotFound)

	_, total, err = svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
