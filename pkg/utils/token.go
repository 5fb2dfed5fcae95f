package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the token payload minted by the Horizon backend.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// UserIDFromToken extracts the user ID claim from a backend-issued session
// token. The signature is NOT verified here: only the backend holds the
// secret, and the engine merely needs to know which user it is syncing for.
// Expiry is still checked so a dead token fails fast instead of producing a
// connection loop against an endpoint that will reject every handshake.
func UserIDFromToken(tokenString string) (string, error) {
	claims := &Claims{}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", err
	}

	if claims.UserID == "" {
		return "", errors.New("token carries no userId claim")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return "", errors.New("token is expired")
	}

	return claims.UserID, nil
}
