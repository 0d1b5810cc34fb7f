package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's
// Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// Identity is what the scan surface needs from a token: who is acting.
type Identity struct {
	UserID string
	Email  string
}

// ExtractIdentityFromJWT reads the sub and email claims from a JWT. The
// signature is not validated here; the gateway in front of this service
// already did, and the redemption protocol re-resolves the user document
// anyway.
func ExtractIdentityFromJWT(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}

	identity := Identity{}
	if sub, ok := claims["sub"].(string); ok {
		identity.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = strings.ToLower(email)
	}
	if identity.UserID == "" && identity.Email == "" {
		return Identity{}, errors.New("token carries neither sub nor email claim")
	}

	return identity, nil
}
