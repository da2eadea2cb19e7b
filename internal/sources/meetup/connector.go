package meetup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dthul/discord-bot/internal/credentials"
	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/rewrite"
)

// Connector normalizes the upcoming events of the configured groups.
// Requests are sent one at a time with a pause in between.
type Connector struct {
	provider credentials.ClientProvider[*Client]
	groups   []string
	pace     time.Duration
	logger   *slog.Logger
}

// NewConnector creates a Meetup connector. pace is the pause between two
// API requests.
func NewConnector(provider credentials.ClientProvider[*Client], groups []string, pace time.Duration, logger *slog.Logger) *Connector {
	return &Connector{
		provider: provider,
		groups:   groups,
		pace:     pace,
		logger:   logging.Component(logger, "meetup"),
	}
}

// Source implements ingestion.Connector.
func (c *Connector) Source() models.Source { return models.SourceMeetup }

// FetchUpcoming implements ingestion.Connector. A group that fails is
// logged and skipped unless every group fails.
func (c *Connector) FetchUpcoming(ctx context.Context) ([]models.SourceEvent, error) {
	var out []models.SourceEvent
	var lastErr error
	failed := 0
	first := true

	for _, urlname := range c.groups {
		if !first {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}
		first = false

		events, err := credentials.CallWithRefresh(ctx, c.provider, func(ctx context.Context, client *Client) ([]Event, error) {
			return client.UpcomingEvents(ctx, urlname)
		})
		if err != nil {
			c.logger.Error("failed to list upcoming events", "group", urlname, "error", err)
			lastErr = err
			failed++
			continue
		}

		for _, ev := range events {
			var rsvps []RSVP
			if ev.YesRSVPCount > 0 {
				if err := c.wait(ctx); err != nil {
					return nil, err
				}
				rsvps, err = credentials.CallWithRefresh(ctx, c.provider, func(ctx context.Context, client *Client) ([]RSVP, error) {
					return client.RSVPs(ctx, urlname, ev.ID)
				})
				if err != nil {
					c.logger.Warn("failed to get rsvps, skipping event", "group", urlname, "external_id", ev.ID, "error", err)
					continue
				}
			}
			out = append(out, Normalize(urlname, ev, rsvps))
		}
	}

	if failed > 0 && failed == len(c.groups) {
		return nil, lastErr
	}
	return out, nil
}

func (c *Connector) wait(ctx context.Context) error {
	if c.pace <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.pace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Normalize converts a Meetup event and its RSVPs into a source event.
// Series membership and chat channel are read from description shortcodes.
func Normalize(urlname string, ev Event, rsvps []RSVP) models.SourceEvent {
	codes := rewrite.ParseShortcodes(ev.Description)
	if ev.Group.URLName != "" {
		urlname = ev.Group.URLName
	}

	out := models.SourceEvent{
		Source:             models.SourceMeetup,
		ExternalID:         ev.ID,
		URLName:            urlname,
		URL:                ev.Link,
		Title:              ev.Name,
		Description:        ev.Description,
		StartTime:          ev.StartTime(),
		IsOnline:           ev.IsOnlineEvent || codes.Online,
		StartsSeries:       codes.StartsSeries(),
		IndicatedChannelID: codes.ChannelID,
		NumFreeSpots:       ev.NumFreeSpots(),
		RSVPsClosed:        ev.RSVPsClosed() || codes.Closed,
	}
	if codes.NewCampaign {
		out.SeriesType = models.SeriesTypeCampaign
	} else if codes.NewAdventure {
		out.SeriesType = models.SeriesTypeAdventure
	}
	if codes.CampaignEventID != "" && codes.CampaignEventID != ev.ID {
		out.LegacyRef = &models.EventRef{Source: models.SourceMeetup, ExternalID: codes.CampaignEventID}
	}

	for _, host := range ev.EventHosts {
		out.Hosts = append(out.Hosts, person(host))
	}
	for _, rsvp := range rsvps {
		if rsvp.Response == ResponseYes {
			out.Attendees = append(out.Attendees, person(rsvp.Member))
		}
	}
	return out
}

func person(m Member) models.Person {
	return models.Person{
		Kind:       models.PersonMeetup,
		ExternalID: strconv.FormatUint(m.ID, 10),
		Name:       m.Name,
	}
}
