package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/studybuddy-platform/studybuddy/internal/api"
)

type claimsKey struct{}

// TokenValidator verifies access tokens. *Service satisfies it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*AccessClaims, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware admits requests carrying a valid access token whose subject is
// a user ID, and stores the claims on the request context.
func Middleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}
			if _, err := uuid.Parse(claims.UserID); err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// UserID returns the authenticated user's ID.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	claims, _ := ctx.Value(claimsKey{}).(*AccessClaims)
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RateLimitKey buckets requests by authenticated user. Anonymous requests
// are not limited by it.
func RateLimitKey(r *http.Request) string {
	if id, ok := UserID(r.Context()); ok {
		return id.String()
	}
	return ""
}
