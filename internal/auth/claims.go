package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is used when no TTL is configured: five days, in minutes.
const DefaultAccessTokenTTL = 60 * 24 * 5

// CustomClaims extends JWT standard claims with the caller's role and area.
type CustomClaims struct {
	jwt.RegisteredClaims
	Username  string `json:"username,omitempty"`
	Role      Role   `json:"role"`
	AreaID    *int64 `json:"area_id"`
	SessionID string `json:"sid"`
}

// Principal converts verified claims into a request principal.
func (c *CustomClaims) Principal() Principal {
	return Principal{
		UserID:    c.Subject,
		Username:  c.Username,
		Role:      c.Role,
		AreaID:    c.AreaID,
		SessionID: c.SessionID,
	}
}

// GenerateAccessToken creates a signed HS256 access token for a user.
// Tokens are validated by signature only; no database hit per request.
func GenerateAccessToken(user *User, secret string, ttlMinutes int) (string, error) {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultAccessTokenTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Username:  user.Username,
		Role:      user.Role,
		AreaID:    user.AreaID,
		SessionID: uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses an access token, returning the custom claims.
// It checks the signature, algorithm, expiry, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	return claims, nil
}
