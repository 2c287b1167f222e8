// FILE: thermwatch/src/internal/sink/credential_test.go
package sink

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedKey(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-real-secret"))
	require.NoError(t, err)
	return key
}

func TestInspectCredential(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("ServiceRole", func(t *testing.T) {
		exp := now.Add(24 * time.Hour)
		info, err := InspectCredential(signedKey(t, jwt.MapClaims{"role": "service_role", "exp": exp.Unix()}))
		require.NoError(t, err)
		assert.Equal(t, "service_role", info.Role)
		assert.True(t, info.ExpiresAt.Equal(exp))
		assert.False(t, info.Expired(now))
	})

	t.Run("Expired", func(t *testing.T) {
		info, err := InspectCredential(signedKey(t, jwt.MapClaims{"role": "anon", "exp": now.Add(-time.Hour).Unix()}))
		require.NoError(t, err, "expiry is reported, not rejected")
		assert.True(t, info.Expired(now))
	})

	t.Run("NoExpiry", func(t *testing.T) {
		info, err := InspectCredential(signedKey(t, jwt.MapClaims{"role": "anon"}))
		require.NoError(t, err)
		assert.True(t, info.ExpiresAt.IsZero())
		assert.False(t, info.Expired(now))
	})

	t.Run("Opaque", func(t *testing.T) {
		_, err := InspectCredential("sb_secret_abcdef")
		assert.Error(t, err)
	})
}
