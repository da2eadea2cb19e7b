// Package auth issues and checks the bearer tokens of the internal API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "discord-bot"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const serviceContextKey contextKey = "service"

// ErrInvalidToken is returned for malformed, expired or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// GenerateToken creates a token identifying service.
func GenerateToken(service, secret string, duration time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty signing secret")
	}
	now := time.Now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a token and returns the service it identifies.
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Service != "" {
		return claims.Service, nil
	}
	return "", ErrInvalidToken
}

// Middleware rejects requests without a valid bearer token.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			service, err := ValidateToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), serviceContextKey, service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceFromContext returns the authenticated service of a request.
func ServiceFromContext(ctx context.Context) (string, bool) {
	service, ok := ctx.Value(serviceContextKey).(string)
	return service, ok
}
