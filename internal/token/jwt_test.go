package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService(t *testing.T) {
	svc := NewJWTService("test-signing-key", "casegov", "casegov-consumers")

	t.Run("round trip preserves caller and scopes", func(t *testing.T) {
		signed, err := svc.GenerateAccessToken("svc-panel", []string{"case:read", "account:read"}, time.Minute)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "svc-panel", claims.CallerID)
		assert.Equal(t, []string{"case:read", "account:read"}, claims.Scopes)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		signed, err := svc.GenerateAccessToken("svc-panel", nil, -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("token signed with another key rejected", func(t *testing.T) {
		other := NewJWTService("other-key", "casegov", "casegov-consumers")
		signed, err := other.GenerateAccessToken("svc-panel", nil, time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(signed)
		require.Error(t, err)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.Error(t, err)
	})
}
