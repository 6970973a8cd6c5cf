package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// downloadTokenSecret signs redirect tokens. The placeholder only exists so
// tests run without wiring; main replaces it from configuration before the
// server accepts requests.
var downloadTokenSecret = []byte("change-this-download-token-secret")

// SetDownloadTokenSecret installs the redirect-token signing secret. Must be
// called once at startup, before any token is minted or verified.
func SetDownloadTokenSecret(secret string) {
	if secret != "" {
		downloadTokenSecret = []byte(secret)
	}
}

// ErrInvalidDownloadToken is returned for any token that fails verification:
// bad signature, malformed payload, or elapsed expiry.
var ErrInvalidDownloadToken = errors.New("invalid download token")

// DownloadClaims bind a redirect token to exactly one (product, link) pair.
type DownloadClaims struct {
	ProductID      int64  `json:"product_id"`
	DownloadLinkID string `json:"download_link_id"`
	jwt.RegisteredClaims
}

// GenerateDownloadToken mints the opaque redirect token handed to buyers in
// place of the raw signed URL. ttl bounds the token itself, independent of
// the link's quota and expiry which are re-checked on every redirect.
func GenerateDownloadToken(productID int64, downloadLinkID string, ttl time.Duration) (string, error) {
	if downloadLinkID == "" {
		return "", errors.New("download link id is required")
	}

	now := time.Now()
	claims := &DownloadClaims{
		ProductID:      productID,
		DownloadLinkID: downloadLinkID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(downloadTokenSecret)
}

// ValidateDownloadToken verifies a redirect token and returns its claims.
// Verification fails closed: any parse, signature, or expiry problem yields
// ErrInvalidDownloadToken.
func ValidateDownloadToken(tokenString string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return downloadTokenSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidDownloadToken
	}

	if claims.DownloadLinkID == "" || claims.ProductID == 0 {
		return nil, ErrInvalidDownloadToken
	}

	return claims, nil
}
