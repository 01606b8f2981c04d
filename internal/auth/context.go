// ABOUTME: Identity context for tracking the analyst through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import (
	"context"
)

// Identity is the resolved owner behind a bearer credential.
type Identity struct {
	OwnerID string // "sub" claim of the bearer token
	Token   string // the raw bearer token, forwarded on outbound calls
}

// identityContextKey is the key type for storing Identity in context.Context.
type identityContextKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// OwnerFromContext returns the owner id stored in ctx or an ErrIdentity.
func OwnerFromContext(ctx context.Context) (string, error) {
	id := FromContext(ctx)
	if id == nil || id.OwnerID == "" {
		return "", ErrIdentity
	}
	return id.OwnerID, nil
}
