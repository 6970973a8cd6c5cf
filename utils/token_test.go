package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadTokenRoundTrip(t *testing.T) {
	token, err := GenerateDownloadToken(42, "dl-abc123", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.ProductID)
	assert.Equal(t, "dl-abc123", claims.DownloadLinkID)
}

func TestSetDownloadTokenSecretGovernsVerification(t *testing.T) {
	defaultSecret := downloadTokenSecret
	t.Cleanup(func() { downloadTokenSecret = defaultSecret })

	signedWithDefault, err := GenerateDownloadToken(42, "dl-abc123", time.Hour)
	require.NoError(t, err)

	SetDownloadTokenSecret("operator-secret")

	// Tokens signed with the shipped placeholder must stop verifying once
	// the operator secret is installed.
	_, err = ValidateDownloadToken(signedWithDefault)
	assert.ErrorIs(t, err, ErrInvalidDownloadToken)

	// Tokens minted under the operator secret verify.
	token, err := GenerateDownloadToken(42, "dl-abc123", time.Hour)
	require.NoError(t, err)
	claims, err := ValidateDownloadToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dl-abc123", claims.DownloadLinkID)

	// Empty input never clears the installed secret.
	SetDownloadTokenSecret("")
	_, err = ValidateDownloadToken(token)
	assert.NoError(t, err)
}

func TestGenerateDownloadTokenRequiresLinkID(t *testing.T) {
	_, err := GenerateDownloadToken(42, "", time.Hour)
	assert.Error(t, err)
}

func TestValidateDownloadTokenFailsClosed(t *testing.T) {
	t.Run("garbage input", func(t *testing.T) {
		_, err := ValidateDownloadToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ValidateDownloadToken("")
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := GenerateDownloadToken(42, "dl-abc123", time.Hour)
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		// Swap the payload for the one of a different token; signature no
		// longer matches.
		other, err := GenerateDownloadToken(43, "dl-other", time.Hour)
		require.NoError(t, err)
		otherParts := strings.Split(other, ".")
		forged := parts[0] + "." + otherParts[1] + "." + parts[2]

		_, err = ValidateDownloadToken(forged)
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateDownloadToken(42, "dl-abc123", -time.Minute)
		require.NoError(t, err)

		_, err = ValidateDownloadToken(token)
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		claims := &DownloadClaims{
			ProductID:      42,
			DownloadLinkID: "dl-abc123",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ValidateDownloadToken(token)
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})

	t.Run("missing claims rejected", func(t *testing.T) {
		claims := &DownloadClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		token, err := signed.SignedString(downloadTokenSecret)
		require.NoError(t, err)

		_, err = ValidateDownloadToken(token)
		assert.ErrorIs(t, err, ErrInvalidDownloadToken)
	})
}
