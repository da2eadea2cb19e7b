package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoRefreshToken is returned when a principal never completed the OAuth2
// login and so cannot be refreshed.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Refresher obtains a new access token for a principal and persists it.
type Refresher interface {
	Refresh(ctx context.Context, principal string) (string, error)
}

// OAuth2Refresher refreshes tokens against the provider's token endpoint
// using the refresh token kept in the TokenStore.
type OAuth2Refresher struct {
	config *oauth2.Config
	store  *TokenStore
}

// NewOAuth2Refresher creates a refresher for the given client credentials.
func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, store *TokenStore) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		store: store,
	}
}

// Refresh implements Refresher.
func (r *OAuth2Refresher) Refresh(ctx context.Context, principal string) (string, error) {
	stored, err := r.store.Load(ctx, principal)
	if err != nil {
		return "", err
	}
	if stored == nil || stored.RefreshToken == "" {
		return "", fmt.Errorf("%w for %s", ErrNoRefreshToken, principal)
	}

	// An already expired token forces the source to hit the token endpoint.
	expired := &oauth2.Token{RefreshToken: stored.RefreshToken, Expiry: time.Unix(1, 0)}
	fresh, err := r.config.TokenSource(ctx, expired).Token()
	if err != nil {
		return "", fmt.Errorf("refresh token for %s: %w", principal, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = stored.RefreshToken
	}

	if err := r.store.Save(ctx, principal, fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}
