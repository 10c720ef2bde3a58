// Package auth implements the authentication collaborator consumed by the
// dispatcher: session tokens and a live view of the current user. The
// sign-in UI itself lives elsewhere.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload carried inside a session JWT.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateSessionToken creates a signed HS256 JWT for a user.
func GenerateSessionToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-sync",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseSessionToken validates signature and expiration and returns the
// claims.
func ParseSessionToken(secret []byte, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
