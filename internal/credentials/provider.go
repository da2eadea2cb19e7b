// Package credentials provides credential-backed API clients and the
// refresh guard that retries a call once after an authentication failure.
package credentials

import (
	"context"
	"sync"
)

// TokenReader returns the cached access token of a principal.
type TokenReader interface {
	AccessToken(ctx context.Context, principal string) (string, bool, error)
}

// ClientProvider hands out authenticated clients of type C.
type ClientProvider[C any] interface {
	// CurrentClient returns the client for the cached token, if any.
	CurrentClient(ctx context.Context) (C, bool, error)
	// Refresh obtains a new token and returns a client built from it.
	Refresh(ctx context.Context) (C, error)
}

// Provider is a ClientProvider for one principal. Clients are never
// mutated: a refresh builds a new client and replaces the cached one, so
// calls still running on the old client fail on their own.
type Provider[C any] struct {
	principal string
	tokens    TokenReader
	refresher Refresher
	build     func(accessToken string) C

	mu      sync.Mutex
	current *C
}

// NewProvider creates a provider for principal.
func NewProvider[C any](principal string, tokens TokenReader, refresher Refresher, build func(accessToken string) C) *Provider[C] {
	return &Provider[C]{
		principal: principal,
		tokens:    tokens,
		refresher: refresher,
		build:     build,
	}
}

// Principal returns the principal whose token backs the clients.
func (p *Provider[C]) Principal() string { return p.principal }

// CurrentClient implements ClientProvider.
func (p *Provider[C]) CurrentClient(ctx context.Context) (C, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero C
	if p.current != nil {
		return *p.current, true, nil
	}
	token, ok, err := p.tokens.AccessToken(ctx, p.principal)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}
	client := p.build(token)
	p.current = &client
	return client, true, nil
}

// Refresh implements ClientProvider.
func (p *Provider[C]) Refresh(ctx context.Context) (C, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero C
	token, err := p.refresher.Refresh(ctx, p.principal)
	if err != nil {
		p.current = nil
		return zero, err
	}
	client := p.build(token)
	p.current = &client
	return client, nil
}
