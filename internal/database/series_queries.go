package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/models"
)

// ErrSeriesNotFound is returned when a series id does not exist.
var ErrSeriesNotFound = errors.New("event series not found")

// Series returns one event series.
func (s *EventStore) Series(ctx context.Context, id models.EventSeriesID) (*models.EventSeries, error) {
	var series models.EventSeries
	var link uuid.NullUUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, "type", swissrpg_event_series_id FROM event_series WHERE id = $1`, id,
	).Scan(&series.ID, &series.Type, &link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSeriesNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	if link.Valid {
		series.SwissRPGSeriesID = &link.UUID
	}
	return &series, nil
}

// EventsForSeries returns the events of a series, most recent start first.
func (s *EventStore) EventsForSeries(ctx context.Context, id models.EventSeriesID) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			event.id, event.event_series_id, event.start_time, event.title, event.description,
			event.is_online, event.discord_category_id,
			meetup_event.id, meetup_event.meetup_id, meetup_event.urlname, meetup_event.url,
			swissrpg_event.id, swissrpg_event.swissrpg_id, swissrpg_event.url
		FROM event
		LEFT JOIN meetup_event ON meetup_event.event_id = event.id
		LEFT JOIN swissrpg_event ON swissrpg_event.event_id = event.id
		WHERE event.event_series_id = $1
		ORDER BY event.start_time DESC, event.id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// LatestEvent returns the event of a series with the latest start time, or
// nil when the series has no events.
func (s *EventStore) LatestEvent(ctx context.Context, id models.EventSeriesID) (*models.Event, error) {
	events, err := s.EventsForSeries(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// SetSwissRPGSeriesID records the SwissRPG series a canonical series
// continues on. An existing different link is left untouched and reported.
func (s *EventStore) SetSwissRPGSeriesID(ctx context.Context, id models.EventSeriesID, link uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE event_series SET swissrpg_event_series_id = $2
		WHERE id = $1 AND (swissrpg_event_series_id IS NULL OR swissrpg_event_series_id = $2)`,
		id, link)
	if err != nil {
		return fmt.Errorf("failed to link series: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link series: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("series %d not found or already linked to another swissrpg series", id)
	}
	return nil
}

// HostDiscordIDs returns the Discord ids of an event's hosts that have one.
func (s *EventStore) HostDiscordIDs(ctx context.Context, id models.EventID) ([]uint64, error) {
	return s.discordIDs(ctx, `
		SELECT member.discord_id
		FROM event_host
		INNER JOIN member ON member.id = event_host.member_id
		WHERE event_host.event_id = $1 AND member.discord_id IS NOT NULL
		ORDER BY member.discord_id`, id)
}

// ParticipantDiscordIDs returns the Discord ids of an event's participants
// that have one.
func (s *EventStore) ParticipantDiscordIDs(ctx context.Context, id models.EventID) ([]uint64, error) {
	return s.discordIDs(ctx, `
		SELECT member.discord_id
		FROM event_participant
		INNER JOIN member ON member.id = event_participant.member_id
		WHERE event_participant.event_id = $1 AND member.discord_id IS NOT NULL
		ORDER BY member.discord_id`, id)
}

func (s *EventStore) discordIDs(ctx context.Context, query string, id models.EventID) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, uint64(v))
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		ev          models.Event
		category    sql.NullInt64
		meetupRowID sql.NullInt64
		meetupID    sql.NullString
		urlname     sql.NullString
		meetupURL   sql.NullString
		swissRowID  sql.NullInt64
		swissID     uuid.NullUUID
		swissURL    sql.NullString
	)
	err := row.Scan(
		&ev.ID, &ev.SeriesID, &ev.StartTime, &ev.Title, &ev.Description,
		&ev.IsOnline, &category,
		&meetupRowID, &meetupID, &urlname, &meetupURL,
		&swissRowID, &swissID, &swissURL,
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}

	if category.Valid {
		ev.DiscordCategoryID = &category.Int64
	}
	if meetupRowID.Valid {
		ev.MeetupEvent = &models.MeetupEvent{
			ID:       meetupRowID.Int64,
			MeetupID: meetupID.String,
			URLName:  urlname.String,
			URL:      meetupURL.String,
		}
	}
	if swissRowID.Valid {
		ev.SwissRPGEvent = &models.SwissRPGEvent{
			ID:         swissRowID.Int64,
			SwissRPGID: swissID.UUID,
			URL:        swissURL.String,
		}
	}
	return ev, nil
}
