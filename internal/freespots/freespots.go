// Package freespots combines the latest results of the reconciliation
// passes into the list of sessions that still take players.
package freespots

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
)

// SnapshotKey is where the published snapshot lives.
const SnapshotKey = "free_spots:latest"

// Collections holds the latest successful collection of each source.
type Collections struct {
	mu     sync.RWMutex
	latest map[models.Source][]models.EventSummary
}

// NewCollections creates an empty holder.
func NewCollections() *Collections {
	return &Collections{latest: make(map[models.Source][]models.EventSummary)}
}

// Set replaces the collection of source.
func (c *Collections) Set(source models.Source, events []models.EventSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[source] = append([]models.EventSummary(nil), events...)
}

// Merged returns the events of all sources.
func (c *Collections) Merged() []models.EventSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.EventSummary
	for _, source := range models.Sources {
		out = append(out, c.latest[source]...)
	}
	return out
}

// Open returns future events with free spots and open RSVPs, earliest first.
func Open(events []models.EventSummary, now time.Time) []models.EventSummary {
	out := make([]models.EventSummary, 0, len(events))
	for _, ev := range events {
		if ev.StartTime.After(now) && ev.HasOpenSpots() {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Snapshot is the published document.
type Snapshot struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Events      []models.EventSummary `json:"events"`
}

// Publisher stores a snapshot for the chat bot.
type Publisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// RedisPublisher writes snapshots as JSON under SnapshotKey.
type RedisPublisher struct {
	rdb redis.Cmdable
}

// NewRedisPublisher creates a publisher on rdb.
func NewRedisPublisher(rdb redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal free spots: %w", err)
	}
	if err := p.rdb.Set(ctx, SnapshotKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("store free spots: %w", err)
	}
	return nil
}

// Latest reads the published snapshot, or nil if none was published.
func (p *RedisPublisher) Latest(ctx context.Context) (*Snapshot, error) {
	payload, err := p.rdb.Get(ctx, SnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read free spots: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("decode free spots: %w", err)
	}
	return &snapshot, nil
}

// Task publishes the open sessions of the latest collections.
type Task struct {
	collections *Collections
	publisher   Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewTask creates the free-spots task.
func NewTask(collections *Collections, publisher Publisher, logger *slog.Logger) *Task {
	return &Task{
		collections: collections,
		publisher:   publisher,
		logger:      logging.Component(logger, "freespots"),
		now:         time.Now,
	}
}

// Run publishes one snapshot.
func (t *Task) Run(ctx context.Context) error {
	now := t.now()
	open := Open(t.collections.Merged(), now)
	if err := t.publisher.Publish(ctx, Snapshot{GeneratedAt: now.UTC(), Events: open}); err != nil {
		return err
	}
	t.logger.Info("published free spots", "events", len(open))
	return nil
}
