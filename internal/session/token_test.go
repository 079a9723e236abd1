package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenManager(t *testing.T) {
	t.Run("should create a manager with default settings", func(t *testing.T) {
		manager := NewTokenManager("test-secret")

		assert.NotNil(t, manager)
		assert.Equal(t, "test-secret", manager.jwtSecret)
		assert.Equal(t, 24*time.Hour, manager.tokenExpiry)
	})

	t.Run("should create a manager with custom settings", func(t *testing.T) {
		expiry := 2 * time.Hour
		manager := NewTokenManagerWithConfig("custom-secret", expiry)

		assert.NotNil(t, manager)
		assert.Equal(t, "custom-secret", manager.jwtSecret)
		assert.Equal(t, expiry, manager.tokenExpiry)
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Run("should hash a password successfully", func(t *testing.T) {
		hash, err := HashPassword("testpassword123")

		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "testpassword123", hash)
		assert.Greater(t, len(hash), 20)
	})

	t.Run("should generate different hashes for the same password", func(t *testing.T) {
		hash1, err := HashPassword("testpassword123")
		require.NoError(t, err)

		hash2, err := HashPassword("testpassword123")
		require.NoError(t, err)

		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("should verify a correct password", func(t *testing.T) {
		hash, err := HashPassword("testpassword123")
		require.NoError(t, err)

		assert.True(t, VerifyPassword("testpassword123", hash))
	})

	t.Run("should reject an incorrect password", func(t *testing.T) {
		hash, err := HashPassword("testpassword123")
		require.NoError(t, err)

		assert.False(t, VerifyPassword("wrongpassword", hash))
	})

	t.Run("should reject an invalid hash", func(t *testing.T) {
		assert.False(t, VerifyPassword("testpassword123", "invalid-hash"))
	})
}

func TestTokenManager_GenerateToken(t *testing.T) {
	manager := NewTokenManager("test-secret")

	t.Run("should generate a valid JWT", func(t *testing.T) {
		token, err := manager.GenerateToken(123, "testuser", false)

		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Contains(t, token, ".")
	})

	t.Run("should generate different tokens for different accounts", func(t *testing.T) {
		token1, err := manager.GenerateToken(1, "user1", false)
		require.NoError(t, err)

		token2, err := manager.GenerateToken(2, "user2", true)
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
	})
}

func TestTokenManager_ValidateToken(t *testing.T) {
	manager := NewTokenManager("test-secret")

	t.Run("should validate a valid token and carry admin status", func(t *testing.T) {
		token, err := manager.GenerateToken(123, "testadmin", true)
		require.NoError(t, err)

		claims, err := manager.ValidateToken(token)
		require.NoError(t, err)
		assert.EqualValues(t, 123, claims.AccountID)
		assert.Equal(t, "testadmin", claims.Username)
		assert.True(t, claims.IsAdmin)
	})

	t.Run("should reject a malformed token", func(t *testing.T) {
		_, err := manager.ValidateToken("invalid.jwt.token")
		assert.Error(t, err)
	})

	t.Run("should reject a token signed with a different secret", func(t *testing.T) {
		wrongManager := NewTokenManager("wrong-secret")
		rightManager := NewTokenManager("right-secret")

		token, err := wrongManager.GenerateToken(123, "testuser", false)
		require.NoError(t, err)

		_, err = rightManager.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		shortManager := NewTokenManagerWithConfig("test-secret", 1*time.Millisecond)

		token, err := shortManager.GenerateToken(123, "testuser", false)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = shortManager.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestTokenManager_RefreshToken(t *testing.T) {
	manager := NewTokenManager("test-secret")

	t.Run("should refresh a valid token preserving its claims", func(t *testing.T) {
		originalToken, err := manager.GenerateToken(123, "testuser", true)
		require.NoError(t, err)

		time.Sleep(1 * time.Second)

		newToken, err := manager.RefreshToken(originalToken)
		require.NoError(t, err)
		assert.NotEmpty(t, newToken)

		claims, err := manager.ValidateToken(newToken)
		require.NoError(t, err)
		assert.EqualValues(t, 123, claims.AccountID)
		assert.Equal(t, "testuser", claims.Username)
		assert.True(t, claims.IsAdmin)
	})

	t.Run("should reject an invalid token for refresh", func(t *testing.T) {
		_, err := manager.RefreshToken("invalid.jwt.token")
		assert.Error(t, err)
	})
}

func TestGenerateSecureSecret(t *testing.T) {
	t.Run("should generate a secret of sufficient length", func(t *testing.T) {
		secret, err := GenerateSecureSecret()

		require.NoError(t, err)
		assert.NotEmpty(t, secret)
		assert.GreaterOrEqual(t, len(secret), 32)
	})

	t.Run("should generate distinct secrets on each call", func(t *testing.T) {
		secret1, err := GenerateSecureSecret()
		require.NoError(t, err)

		secret2, err := GenerateSecureSecret()
		require.NoError(t, err)

		assert.NotEqual(t, secret1, secret2)
	})
}
