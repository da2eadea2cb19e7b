package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiry       = "expiry"
)

// TokenStore keeps OAuth2 tokens per principal in a Redis hash.
type TokenStore struct {
	rdb redis.Cmdable
}

// NewTokenStore creates a token store.
func NewTokenStore(rdb redis.Cmdable) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func tokenKey(principal string) string {
	return fmt.Sprintf("meetup_user:%s:oauth2_tokens", principal)
}

// AccessToken returns the cached access token of principal.
func (s *TokenStore) AccessToken(ctx context.Context, principal string) (string, bool, error) {
	token, err := s.rdb.HGet(ctx, tokenKey(principal), fieldAccessToken).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read access token: %w", err)
	}
	return token, token != "", nil
}

// Load returns the stored token of principal, or nil if there is none.
func (s *TokenStore) Load(ctx context.Context, principal string) (*oauth2.Token, error) {
	fields, err := s.rdb.HGetAll(ctx, tokenKey(principal)).Result()
	if err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	tok := &oauth2.Token{
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
		TokenType:    "Bearer",
	}
	if raw := fields[fieldExpiry]; raw != "" {
		if expiry, err := time.Parse(time.RFC3339, raw); err == nil {
			tok.Expiry = expiry
		}
	}
	return tok, nil
}

// Save stores tok for principal, replacing the previous one.
func (s *TokenStore) Save(ctx context.Context, principal string, tok *oauth2.Token) error {
	values := map[string]any{
		fieldAccessToken:  tok.AccessToken,
		fieldRefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		values[fieldExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	key := tokenKey(principal)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}
