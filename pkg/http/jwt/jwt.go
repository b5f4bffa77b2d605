// Package jwt issues and validates the single-purpose bearer token that
// protects the gateway's /admin routes, grounded on the teacher's
// pkg/http/jwt/jwt.go but trimmed to one claim type and one token (no
// refresh token: admin sessions are short-lived by design).
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims is the claim set carried by an admin bearer token.
type AdminClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

const issuer = "cadflight-gateway"

// GenToken signs a token for subject that expires after ttl.
func GenToken(subject string, secretKey []byte, ttl time.Duration) (string, error) {
	claims := &AdminClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}

// ParseToken validates token's signature and expiry against secretKey.
func ParseToken(token string, secretKey []byte) (*AdminClaims, error) {
	claims := new(AdminClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, jwt.ErrTokenExpired
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
