package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateToken("adm-1", "admin", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Greater(t, expiresAt, int64(0))

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "adm-1", claims.AdminID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestSetJWTSecretGovernsValidation(t *testing.T) {
	defaultSecret := jwtSecret
	t.Cleanup(func() { jwtSecret = defaultSecret })

	signedWithDefault, _, err := GenerateToken("adm-1", "admin", "admin")
	require.NoError(t, err)

	SetJWTSecret("operator-secret")

	_, err = ValidateToken(signedWithDefault)
	assert.Error(t, err)

	token, _, err := GenerateToken("adm-1", "admin", "admin")
	require.NoError(t, err)
	_, err = ValidateToken(token)
	assert.NoError(t, err)
}
