// Package flow implements the one-shot "schedule next session" flow: a
// short-lived token tied to a series, and the scheduling service that
// consumes it.
package flow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dthul/discord-bot/internal/models"
)

var (
	// ErrFlowNotFound is returned for unknown or expired flow tokens.
	ErrFlowNotFound = errors.New("flow not found or expired")
	// ErrFlowInProgress is returned when another submission holds the flow.
	ErrFlowInProgress = errors.New("flow is already being scheduled")
)

const seriesField = "event_series_id"

// Flow is a pending schedule-session action.
type Flow struct {
	ID       uint64
	SeriesID models.EventSeriesID
}

// Store keeps flows in Redis. The key is the only record of a flow; it
// disappears on completion or when its TTL lapses.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewStore creates a flow store whose flows live for ttl.
func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func flowKey(id uint64) string {
	return fmt.Sprintf("flow:schedule_session:%d", id)
}

func claimKey(id uint64) string {
	return flowKey(id) + ":lock"
}

// Create starts a flow for seriesID under a random token.
func (s *Store) Create(ctx context.Context, seriesID models.EventSeriesID) (*Flow, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("generate flow id: %w", err)
	}
	id := binary.BigEndian.Uint64(buf[:])

	key := flowKey(id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, seriesField, int64(seriesID))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store flow: %w", err)
	}
	return &Flow{ID: id, SeriesID: seriesID}, nil
}

// Retrieve returns the flow stored under id.
func (s *Store) Retrieve(ctx context.Context, id uint64) (*Flow, error) {
	seriesID, err := s.rdb.HGet(ctx, flowKey(id), seriesField).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read flow %d: %w", id, err)
	}
	return &Flow{ID: id, SeriesID: models.EventSeriesID(seriesID)}, nil
}

// Claim reserves flow id for one submission. It returns ErrFlowInProgress
// while another claim is held. A claim expires with the flow's TTL.
func (s *Store) Claim(ctx context.Context, id uint64) error {
	ok, err := s.rdb.SetNX(ctx, claimKey(id), 1, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim flow %d: %w", id, err)
	}
	if !ok {
		return ErrFlowInProgress
	}
	return nil
}

// Release drops a claim so the flow can be submitted again.
func (s *Store) Release(ctx context.Context, id uint64) error {
	if err := s.rdb.Del(ctx, claimKey(id)).Err(); err != nil {
		return fmt.Errorf("release flow %d: %w", id, err)
	}
	return nil
}

// Delete completes a flow and drops its claim.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	if err := s.rdb.Del(ctx, flowKey(id), claimKey(id)).Err(); err != nil {
		return fmt.Errorf("delete flow %d: %w", id, err)
	}
	return nil
}

// ParseID parses a flow token from a URL. A malformed token is reported as
// ErrFlowNotFound.
func ParseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrFlowNotFound
	}
	return id, nil
}
