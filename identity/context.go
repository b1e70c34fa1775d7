package identity

import "context"

// Context key type to avoid collisions
type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal adds a resolved principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the resolved principal from context, or nil.
func FromContext(ctx context.Context) *Principal {
	if val := ctx.Value(principalKey); val != nil {
		if p, ok := val.(*Principal); ok {
			return p
		}
	}
	return nil
}
