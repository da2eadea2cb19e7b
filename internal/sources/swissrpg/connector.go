package swissrpg

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
)

const (
	tagTypeLocation = "location"
	locationOnline  = "online"
)

// EventLister is the part of Client the connector needs.
type EventLister interface {
	GetEvents(ctx context.Context) ([]Event, error)
}

// Connector normalizes SwissRPG sessions into source events.
type Connector struct {
	client EventLister
	now    func() time.Time
	logger *slog.Logger
}

// NewConnector creates a SwissRPG connector.
func NewConnector(client EventLister, logger *slog.Logger) *Connector {
	return &Connector{client: client, now: time.Now, logger: logging.Component(logger, "swissrpg")}
}

// Source implements ingestion.Connector.
func (c *Connector) Source() models.Source { return models.SourceSwissRPG }

// FetchUpcoming returns every current or upcoming session that starts in
// the future, one source event per session.
func (c *Connector) FetchUpcoming(ctx context.Context) ([]models.SourceEvent, error) {
	series, err := c.client.GetEvents(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	var out []models.SourceEvent
	for _, ev := range series {
		sessions := ev.UpcomingSessions
		if ev.CurrentSession != nil {
			sessions = append([]Session{*ev.CurrentSession}, sessions...)
		}
		seen := make(map[string]struct{}, len(sessions))
		for _, s := range sessions {
			if !s.Start.After(now) {
				continue
			}
			id := s.UUID.String()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, Normalize(ev, s))
		}
	}
	c.logger.Debug("fetched upcoming sessions", "series", len(series), "sessions", len(out))
	return out, nil
}

// Normalize converts one session of a series into a source event.
func Normalize(ev Event, s Session) models.SourceEvent {
	out := models.SourceEvent{
		Source:           models.SourceSwissRPG,
		ExternalID:       s.UUID.String(),
		SeriesExternalID: ev.UUID.String(),
		URL:              ev.PublicURL,
		Title:            ev.Title,
		StartTime:        s.Start,
		IsOnline:         IsOnline(ev.Tags),
		Hosts:            people(ev.Organisers),
		Attendees:        people(s.Attendees),
		NumFreeSpots:     max(s.OpenSeats, 0),
		RSVPsClosed:      !s.RSVPOpen,
	}
	if ev.Description != nil {
		out.Description = *ev.Description
	}
	if ev.LegacyID != nil {
		out.LegacyRef = &models.EventRef{
			Source:     models.SourceMeetup,
			ExternalID: strconv.FormatUint(*ev.LegacyID, 10),
		}
	}
	return out
}

// IsOnline reports whether the series is played online: it is tagged with
// the online location or has no location at all.
func IsOnline(tags []Tag) bool {
	hasLocation := false
	for _, t := range tags {
		if t.TagType != tagTypeLocation {
			continue
		}
		if t.Code == locationOnline {
			return true
		}
		hasLocation = true
	}
	return !hasLocation
}

func people(users []User) []models.Person {
	out := make([]models.Person, 0, len(users))
	for _, u := range users {
		out = append(out, models.Person{
			Kind:       models.PersonDiscord,
			ExternalID: u.DiscordID,
			Name:       u.Username,
		})
	}
	return out
}
