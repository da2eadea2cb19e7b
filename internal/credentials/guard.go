package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/dthul/discord-bot/internal/sources"
)

// CallWithRefresh runs call with a client from provider. Without a cached
// token it refreshes first. If call fails with sources.ErrAuthentication the
// token is refreshed once and call is retried once; any other error, or a
// second authentication failure, is returned as is.
func CallWithRefresh[C, T any](ctx context.Context, provider ClientProvider[C], call func(context.Context, C) (T, error)) (T, error) {
	var zero T

	client, ok, err := provider.CurrentClient(ctx)
	if err != nil {
		return zero, fmt.Errorf("load credentials: %w", err)
	}
	if !ok {
		if client, err = provider.Refresh(ctx); err != nil {
			return zero, fmt.Errorf("obtain credentials: %w", err)
		}
	}

	result, err := call(ctx, client)
	if err == nil || !errors.Is(err, sources.ErrAuthentication) {
		return result, err
	}

	client, refreshErr := provider.Refresh(ctx)
	if refreshErr != nil {
		return zero, fmt.Errorf("refresh credentials after %v: %w", err, refreshErr)
	}
	return call(ctx, client)
}
