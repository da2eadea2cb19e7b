package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/reconcile"
)

// EventStore is the canonical series/event store backed by PostgreSQL.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates a new PostgreSQL event store.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// WithinTx implements reconcile.Store.
func (s *EventStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx reconcile.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &eventTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type eventTx struct {
	tx *sql.Tx
}

func (t *eventTx) LockBinding(ctx context.Context, ref models.EventRef) (*reconcile.Binding, error) {
	var query string
	var arg any
	switch ref.Source {
	case models.SourceMeetup:
		query = `
			SELECT event.id, event.event_series_id
			FROM meetup_event
			INNER JOIN event ON meetup_event.event_id = event.id
			WHERE meetup_event.meetup_id = $1
			FOR UPDATE`
		arg = ref.ExternalID
	case models.SourceSwissRPG:
		id, err := uuid.Parse(ref.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("parse swissrpg id %q: %w", ref.ExternalID, err)
		}
		query = `
			SELECT event.id, event.event_series_id
			FROM swissrpg_event
			INNER JOIN event ON swissrpg_event.event_id = event.id
			WHERE swissrpg_event.swissrpg_id = $1
			FOR UPDATE`
		arg = id
	default:
		return nil, fmt.Errorf("unknown source %q", ref.Source)
	}

	var b reconcile.Binding
	err := t.tx.QueryRowContext(ctx, query, arg).Scan(&b.EventID, &b.SeriesID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *eventTx) SeriesForEvent(ctx context.Context, ref models.EventRef) (models.EventSeriesID, bool, error) {
	var query string
	var arg any
	switch ref.Source {
	case models.SourceMeetup:
		query = `
			SELECT event.event_series_id
			FROM event
			INNER JOIN meetup_event ON event.id = meetup_event.event_id
			WHERE meetup_event.meetup_id = $1`
		arg = ref.ExternalID
	case models.SourceSwissRPG:
		id, err := uuid.Parse(ref.ExternalID)
		if err != nil {
			return 0, false, nil
		}
		query = `
			SELECT event.event_series_id
			FROM event
			INNER JOIN swissrpg_event ON event.id = swissrpg_event.event_id
			WHERE swissrpg_event.swissrpg_id = $1`
		arg = id
	default:
		return 0, false, fmt.Errorf("unknown source %q", ref.Source)
	}

	var id models.EventSeriesID
	err := t.tx.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *eventTx) SeriesForSwissRPGSeries(ctx context.Context, link uuid.UUID) (models.EventSeriesID, bool, error) {
	var id models.EventSeriesID
	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM event_series WHERE swissrpg_event_series_id = $1`, link).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *eventTx) CreateSeries(ctx context.Context, seriesType string) (models.EventSeriesID, error) {
	var id models.EventSeriesID
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO event_series ("type") VALUES ($1) RETURNING id`, seriesType).Scan(&id)
	return id, err
}

func (t *eventTx) LockSwissRPGLink(ctx context.Context, seriesID models.EventSeriesID) (*uuid.UUID, error) {
	var link uuid.NullUUID
	err := t.tx.QueryRowContext(ctx,
		`SELECT swissrpg_event_series_id FROM event_series WHERE id = $1 FOR UPDATE`, seriesID).Scan(&link)
	if err != nil {
		return nil, err
	}
	if !link.Valid {
		return nil, nil
	}
	return &link.UUID, nil
}

func (t *eventTx) SetSwissRPGLink(ctx context.Context, seriesID models.EventSeriesID, link uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE event_series SET swissrpg_event_series_id = $2 WHERE id = $1`, seriesID, link)
	return err
}

func (t *eventTx) InsertEvent(ctx context.Context, f reconcile.EventFields) (models.EventID, error) {
	var id models.EventID
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO event (event_series_id, start_time, title, description, is_online)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		f.SeriesID, f.StartTime, f.Title, f.Description, f.IsOnline,
	).Scan(&id)
	return id, err
}

// UpdateEvent leaves discord_category_id alone; it is owned by the chat bot.
func (t *eventTx) UpdateEvent(ctx context.Context, id models.EventID, f reconcile.EventFields) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE event
		SET event_series_id = $1, start_time = $2, title = $3, description = $4, is_online = $5
		WHERE id = $6`,
		f.SeriesID, f.StartTime, f.Title, f.Description, f.IsOnline, id,
	)
	return err
}

func (t *eventTx) InsertBinding(ctx context.Context, id models.EventID, ev models.SourceEvent) error {
	switch ev.Source {
	case models.SourceMeetup:
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO meetup_event (event_id, meetup_id, urlname, url)
			VALUES ($1, $2, $3, $4)`,
			id, ev.ExternalID, ev.URLName, ev.URL,
		)
		return err
	case models.SourceSwissRPG:
		session, err := uuid.Parse(ev.ExternalID)
		if err != nil {
			return fmt.Errorf("parse swissrpg id %q: %w", ev.ExternalID, err)
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO swissrpg_event (event_id, swissrpg_id, url)
			VALUES ($1, $2, $3)`,
			id, session, ev.URL,
		)
		return err
	default:
		return fmt.Errorf("unknown source %q", ev.Source)
	}
}

func (t *eventTx) GetOrCreateMember(ctx context.Context, kind models.PersonKind, externalID uint64) (models.MemberID, error) {
	column, err := memberColumn(kind)
	if err != nil {
		return 0, err
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := fmt.Sprintf(`
		INSERT INTO member (%[1]s) VALUES ($1)
		ON CONFLICT (%[1]s) DO UPDATE SET %[1]s = EXCLUDED.%[1]s
		RETURNING id`, column)

	var id models.MemberID
	if err := t.tx.QueryRowContext(ctx, query, int64(externalID)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *eventTx) AddHost(ctx context.Context, id models.EventID, member models.MemberID) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO event_host (event_id, member_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, member)
	return err
}

func (t *eventTx) ReplaceParticipants(ctx context.Context, id models.EventID, members []models.MemberID) error {
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = int64(m)
	}

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM event_participant WHERE event_id = $1 AND NOT (member_id = ANY($2))`,
		id, pq.Array(ids),
	); err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO event_participant (event_id, member_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		id, pq.Array(ids),
	); err != nil {
		return err
	}
	return nil
}

func memberColumn(kind models.PersonKind) (string, error) {
	switch kind {
	case models.PersonDiscord:
		return "discord_id", nil
	case models.PersonMeetup:
		return "meetup_id", nil
	default:
		return "", fmt.Errorf("%w: unknown person kind %q", models.ErrInvalidMemberID, kind)
	}
}
