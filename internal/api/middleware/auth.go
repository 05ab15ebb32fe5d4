// Package middleware provides HTTP middleware for the reference server.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phrazzld/servicekit/internal/api/shared"
)

// Principal is the authenticated caller identity extracted from a verified
// token. It is what service authorization predicates receive.
type Principal struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

// String is the principal's display form, used in framework logs and
// not-authorized errors.
func (p Principal) String() string { return p.Subject }

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// authClaims is the JWT claim structure the middleware accepts.
type authClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT bearer authentication for routes.
type AuthMiddleware struct {
	signingKey []byte
	logger     *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware verifying HMAC-SHA256 tokens
// signed with the given secret.
func NewAuthMiddleware(secret string, logger *slog.Logger) (*AuthMiddleware, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		signingKey: []byte(secret),
		logger:     logger.With(slog.String("component", "auth_middleware")),
	}, nil
}

// Authenticate validates JWT tokens from the Authorization header and adds
// the resulting Principal to the request context for authorized requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		principal, err := m.verify(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
				return
			}
			m.logger.Debug("token validation failed", slog.String("error", err.Error()))
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), shared.PrincipalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify parses and validates a token string, returning the Principal it
// carries.
func (m *AuthMiddleware) verify(tokenString string) (Principal, error) {
	var claims authClaims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("token has no subject")
	}
	return Principal{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// GenerateToken creates a signed token for the given subject and roles,
// valid for the given lifetime. Used by tests and local tooling.
func GenerateToken(secret, subject string, roles []string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := authClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
