// Package channels ties chat channels to event series in Redis.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dthul/discord-bot/internal/models"
)

var (
	// ErrChannelTaken is returned when a channel already belongs to another series.
	ErrChannelTaken = errors.New("channel is associated with another series")
	// ErrSeriesHasChannel is returned when a series already has a different channel.
	ErrSeriesHasChannel = errors.New("series is associated with another channel")
)

const channelSetKey = "discord_channels"

func channelKey(channelID uint64) string {
	return fmt.Sprintf("discord_channel:%d:event_series", channelID)
}

func seriesKey(seriesID models.EventSeriesID) string {
	return fmt.Sprintf("event_series:%d:discord_channel", seriesID)
}

// Store records which series a channel belongs to.
type Store struct {
	rdb redis.Cmdable
}

// NewStore creates a store on rdb.
func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

// associateScript claims both directions of a channel/series pair in one
// step. KEYS: channel key, series key, channel set. ARGV: series id,
// channel id. Returns {0, ""} on success, {1, owner series} when the
// channel is taken and {2, owned channel} when the series has another
// channel. Re-running it for an existing pair rewrites the same values,
// which also completes a pair whose index entries are missing.
var associateScript = redis.NewScript(`
local series = redis.call('GET', KEYS[1])
if series and series ~= ARGV[1] then
	return {1, series}
end
local channel = redis.call('GET', KEYS[2])
if channel and channel ~= ARGV[2] then
	return {2, channel}
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[2])
return {0, ''}
`)

// TryAssociate ties channelID to seriesID. A channel belongs to at most one
// series and a series to at most one channel; a different existing owner on
// either side is reported as ErrChannelTaken or ErrSeriesHasChannel and
// nothing is written. Associating an existing pair again is a no-op.
func (s *Store) TryAssociate(ctx context.Context, channelID uint64, seriesID models.EventSeriesID) error {
	series := strconv.FormatInt(int64(seriesID), 10)
	channel := strconv.FormatUint(channelID, 10)

	res, err := associateScript.Run(ctx, s.rdb,
		[]string{channelKey(channelID), seriesKey(seriesID), channelSetKey},
		series, channel,
	).Slice()
	if err != nil {
		return fmt.Errorf("associate channel %d with series %d: %w", channelID, seriesID, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("associate channel %d: unexpected reply %v", channelID, res)
	}

	code, _ := res[0].(int64)
	owner, _ := res[1].(string)
	switch code {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: channel %d belongs to series %s, not %d", ErrChannelTaken, channelID, owner, seriesID)
	case 2:
		return fmt.Errorf("%w: series %d has channel %s, not %d", ErrSeriesHasChannel, seriesID, owner, channelID)
	default:
		return fmt.Errorf("associate channel %d: unexpected reply %v", channelID, res)
	}
}

// SeriesForChannel returns the series a channel belongs to.
func (s *Store) SeriesForChannel(ctx context.Context, channelID uint64) (models.EventSeriesID, bool, error) {
	raw, err := s.rdb.Get(ctx, channelKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get series of channel %d: %w", channelID, err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse series of channel %d: %w", channelID, err)
	}
	return models.EventSeriesID(id), true, nil
}

// ChannelForSeries returns the channel of a series.
func (s *Store) ChannelForSeries(ctx context.Context, seriesID models.EventSeriesID) (uint64, bool, error) {
	id, err := s.rdb.Get(ctx, seriesKey(seriesID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get channel of series %d: %w", seriesID, err)
	}
	return id, true, nil
}

// Channels lists every associated channel.
func (s *Store) Channels(ctx context.Context) ([]uint64, error) {
	members, err := s.rdb.SMembers(ctx, channelSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	out := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
