package auth

import (
	"context"
	"errors"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var ErrUnauthenticated = errors.New("authentication required")

// Principal is the authenticated user a request acts for.
type Principal struct {
	ID    string
	Email string
	Role  string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, or
// ErrUnauthenticated when there is none.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ID == "" {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}
