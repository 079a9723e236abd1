// Package session implements connection-session identity: JWT-backed
// session tokens so a browser reload can resume an admin or
// registered-user session without re-authenticating, plus the connection
// dispatcher that routes every decoded wire.Message to its owning
// collaborator. Token issuance/verification follows an AuthManager shape,
// generalized from "client credentials" to "CollabVM account session".
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenManager issues and verifies session tokens for logged-in accounts.
type TokenManager struct {
	jwtSecret   string
	tokenExpiry time.Duration
}

// Claims identifies the account a session token was issued for and whether
// it carries admin privileges. Guest sessions never hold a token at all.
type Claims struct {
	AccountID uint   `json:"account_id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// NewTokenManager creates a TokenManager with the default 24h expiry.
func NewTokenManager(jwtSecret string) *TokenManager {
	return &TokenManager{jwtSecret: jwtSecret, tokenExpiry: 24 * time.Hour}
}

// NewTokenManagerWithConfig creates a TokenManager with a custom expiry.
func NewTokenManagerWithConfig(jwtSecret string, tokenExpiry time.Duration) *TokenManager {
	return &TokenManager{jwtSecret: jwtSecret, tokenExpiry: tokenExpiry}
}

// HashPassword bcrypt-hashes a plaintext account password.
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash in
// constant time.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken issues a signed session token for the given account.
func (tm *TokenManager) GenerateToken(accountID uint, username string, isAdmin bool) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		Username:  username,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "collabvm",
			Subject:   fmt.Sprintf("account-%d", accountID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and verifies a session token, returning its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// RefreshToken re-issues a token for the account carried by a still-valid
// existing token, without requiring the account to re-authenticate.
func (tm *TokenManager) RefreshToken(tokenString string) (string, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return "", fmt.Errorf("cannot refresh invalid token: %w", err)
	}
	return tm.GenerateToken(claims.AccountID, claims.Username, claims.IsAdmin)
}

// GenerateSecureSecret produces a cryptographically random JWT signing
// secret for first-time server setup.
func GenerateSecureSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
