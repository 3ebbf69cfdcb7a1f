package notification

import (
	"context"
	"errors"
)

// ErrNoProvider is the panic value of MustProvider outside a provider scope.
var ErrNoProvider = errors.New("notification: no NotificationProvider in context; wrap the handler with middleware.Provider")

type contextKey struct{}

func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func ProviderFrom(ctx context.Context) (*Provider, bool) {
	p, ok := ctx.Value(contextKey{}).(*Provider)
	return p, ok && p != nil
}

// MustProvider returns the Provider in ctx and panics with ErrNoProvider
// when there is none. Using notification state outside the provider's
// scope is a programming error.
func MustProvider(ctx context.Context) *Provider {
	p, ok := ProviderFrom(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return p
}
