package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dthul/discord-bot/internal/sources"
)

type fakeProvider struct {
	token     string
	refreshes int
	failWith  error
}

func (p *fakeProvider) CurrentClient(context.Context) (string, bool, error) {
	return p.token, p.token != "", nil
}

func (p *fakeProvider) Refresh(context.Context) (string, error) {
	p.refreshes++
	if p.failWith != nil {
		return "", p.failWith
	}
	p.token = fmt.Sprintf("token-%d", p.refreshes)
	return p.token, nil
}

func authErr() error {
	return &sources.APIError{Source: "meetup", StatusCode: http.StatusUnauthorized}
}

func TestCallWithRefreshSucceedsWithoutRefresh(t *testing.T) {
	p := &fakeProvider{token: "cached"}
	got, err := CallWithRefresh(context.Background(), p, func(_ context.Context, token string) (string, error) {
		return "ok:" + token, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok:cached", got)
	assert.Zero(t, p.refreshes)
}

func TestCallWithRefreshRefreshesWhenNoToken(t *testing.T) {
	p := &fakeProvider{}
	got, err := CallWithRefresh(context.Background(), p, func(_ context.Context, token string) (string, error) {
		return token, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "token-1", got)
	assert.Equal(t, 1, p.refreshes)
}

func TestCallWithRefreshRetriesOnceOnAuthFailure(t *testing.T) {
	p := &fakeProvider{token: "stale"}
	var seen []string
	got, err := CallWithRefresh(context.Background(), p, func(_ context.Context, token string) (int, error) {
		seen = append(seen, token)
		if token == "stale" {
			return 0, authErr()
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"stale", "token-1"}, seen)
	assert.Equal(t, 1, p.refreshes)
}

func TestCallWithRefreshBoundsRetries(t *testing.T) {
	p := &fakeProvider{token: "stale"}
	calls := 0
	_, err := CallWithRefresh(context.Background(), p, func(context.Context, string) (int, error) {
		calls++
		return 0, authErr()
	})
	require.ErrorIs(t, err, sources.ErrAuthentication)
	assert.Equal(t, 2, calls, "exactly one retry")
	assert.Equal(t, 1, p.refreshes, "exactly one refresh")
}

func TestCallWithRefreshDoesNotRetryOtherErrors(t *testing.T) {
	p := &fakeProvider{token: "cached"}
	calls := 0
	transient := &sources.TransientError{Source: "meetup", StatusCode: 503, Err: errors.New("down")}
	_, err := CallWithRefresh(context.Background(), p, func(context.Context, string) (int, error) {
		calls++
		return 0, transient
	})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 1, calls)
	assert.Zero(t, p.refreshes)
}

func TestCallWithRefreshPropagatesRefreshFailure(t *testing.T) {
	refreshErr := errors.New("token endpoint down")
	p := &fakeProvider{token: "stale", failWith: refreshErr}
	calls := 0
	_, err := CallWithRefresh(context.Background(), p, func(context.Context, string) (int, error) {
		calls++
		return 0, authErr()
	})
	require.ErrorIs(t, err, refreshErr)
	assert.Equal(t, 1, calls)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) Refresh(_ context.Context, principal string) (string, error) {
	r.calls++
	return fmt.Sprintf("%s-fresh-%d", principal, r.calls), nil
}

func TestProviderSwapsClientOnRefresh(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewTokenStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "organizer", &oauth2.Token{AccessToken: "cached", RefreshToken: "r"}))

	type client struct{ token string }
	refresher := &countingRefresher{}
	p := NewProvider("organizer", store, refresher, func(token string) *client { return &client{token: token} })

	first, ok, err := p.CurrentClient(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached", first.token)

	second, err := p.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "organizer-fresh-1", second.token)
	assert.Equal(t, "cached", first.token, "old client must not be mutated")

	current, ok, err := p.CurrentClient(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, second, current)
}

func TestProviderWithoutStoredToken(t *testing.T) {
	p := NewProvider("nobody", NewTokenStore(newTestRedis(t)), &countingRefresher{}, func(token string) string { return token })
	_, ok, err := p.CurrentClient(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOAuth2RefresherPersistsNewToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "client", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	rdb := newTestRedis(t)
	store := NewTokenStore(rdb)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "organizer", &oauth2.Token{AccessToken: "old", RefreshToken: "old-refresh"}))

	r := NewOAuth2Refresher("client", "secret", srv.URL, store)
	token, err := r.Refresh(ctx, "organizer")
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)

	cached, ok, err := store.AccessToken(ctx, "organizer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new-access", cached)

	stored, err := store.Load(ctx, "organizer")
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", stored.RefreshToken, "refresh token kept when not rotated")
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.Expiry, time.Minute)
}

func TestOAuth2RefresherWithoutRefreshToken(t *testing.T) {
	r := NewOAuth2Refresher("client", "secret", "http://127.0.0.1:1/token", NewTokenStore(newTestRedis(t)))
	_, err := r.Refresh(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNoRefreshToken)
}
