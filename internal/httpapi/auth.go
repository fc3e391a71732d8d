package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zjrosen/regd/internal/log"
)

// Issuer is the iss claim of admin tokens.
const Issuer = "regd"

var (
	// ErrMissingToken is returned when a request has no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the admin token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 admin tokens.
type TokenService struct {
	key []byte
	now func() time.Time
}

// NewTokenService returns a service for secret, or nil when secret is
// empty, meaning the API is unauthenticated.
func NewTokenService(secret string) *TokenService {
	if secret == "" {
		return nil
	}
	return &TokenService{key: []byte(secret), now: time.Now}
}

// Issue signs a token for subject valid for ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature, algorithm, issuer and expiry of raw.
func (s *TokenService) Validate(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type subjectKey struct{}

// Subject returns the authenticated token subject, or "".
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// RequireAuth rejects requests without a valid bearer token. A nil service
// lets every request through.
func RequireAuth(s *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="regd"`)
				writeError(w, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			claims, err := s.Validate(strings.TrimSpace(raw))
			if err != nil {
				log.Debug(log.CatHTTP, "Rejected token", "path", r.URL.Path, "error", err.Error())
				w.Header().Set("WWW-Authenticate", `Bearer realm="regd", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
