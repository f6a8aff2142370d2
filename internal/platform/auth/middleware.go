package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/stockyard/api/internal/platform/httpx"
)

const emailClaim = "email"

var (
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator constructs middleware support around the verifier.
func NewAuthenticator(verifier TokenVerifier) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("auth: token verifier is required")
	}
	return &Authenticator{verifier: verifier}, nil
}

// RequireIdentity rejects requests lacking a valid bearer token and stores the
// resolved identity on the request context.
func (a *Authenticator) RequireIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := bearerToken(r)
			if token == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization bearer token required", http.StatusUnauthorized))
				return
			}

			decoded, err := a.verifier.VerifyIDToken(ctx, token)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid or expired token", http.StatusUnauthorized))
				return
			}

			identity := &Identity{UID: decoded.UID}
			if email, ok := decoded.Claims[emailClaim].(string); ok {
				identity.Email = strings.TrimSpace(email)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
