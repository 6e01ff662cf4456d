// Package identity carries the optional authenticated referrer through a
// request context.
package identity

import (
	"context"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity, or nil for an anonymous request.
func FromContext(ctx context.Context) *domain.Identity {
	id, ok := ctx.Value(ctxKey{}).(domain.Identity)
	if !ok {
		return nil
	}
	return &id
}
