package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"go.uber.org/zap"
)

type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (access.Principal, error)
}

// Authenticate resolves a bearer token into the request Principal. Requests
// without an Authorization header pass through anonymous and are rejected by
// the service guards where a principal is required.
func Authenticate(tokens *auth.TokenIssuer, loader PrincipalLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := auth.BearerToken(header)
			if !ok {
				WriteError(w, r, logger, apperr.Unauthorized("could not validate credentials"))
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				msg := "could not validate credentials"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token has expired"
				}
				WriteError(w, r, logger, apperr.Unauthorized(msg))
				return
			}
			p, err := loader.LoadPrincipal(r.Context(), claims.Subject)
			if err != nil {
				WriteError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), p)))
		})
	}
}

func principal(r *http.Request) access.Principal {
	p, _ := access.FromContext(r.Context())
	return p
}
