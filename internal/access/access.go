// Package access holds the authenticated principal and the authorization guards
// composed in front of every protected operation.
package access

import (
	"context"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
)

// Principal is the caller resolved by the authentication layer.
type Principal struct {
	ID      string
	IsAdmin bool
}

func (p Principal) Authenticated() bool { return p.ID != "" }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.Authenticated()
}

// Authenticated rejects anonymous callers.
func Authenticated(p Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

// Admin rejects non-admin principals.
func Admin(p Principal) error {
	if err := Authenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin {
		return apperr.Forbidden("admin privileges required")
	}
	return nil
}

// Owner rejects principals whose id differs from the resource owner, admins included.
func Owner(p Principal, ownerID string) error {
	if err := Authenticated(p); err != nil {
		return err
	}
	if p.ID != ownerID {
		return apperr.Forbidden("you don't have permission to access this resource")
	}
	return nil
}

func OwnerOrAdmin(p Principal, ownerID string) error {
	if err := Authenticated(p); err != nil {
		return err
	}
	if p.IsAdmin || p.ID == ownerID {
		return nil
	}
	return apperr.Forbidden("you don't have permission to access this resource")
}
