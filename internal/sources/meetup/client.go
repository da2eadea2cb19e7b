// Package meetup is the adapter for Meetup, the legacy event platform.
package meetup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dthul/discord-bot/internal/sources"
)

// ErrNoVenue is returned when cloning an event without a venue.
var ErrNoVenue = errors.New("cannot clone an event without a venue")

// Client is a Meetup API client bound to one access token. Clients are
// cheap; build a new one per token and share the Transport.
type Client struct {
	transport *sources.Transport
	token     string
}

// NewTransport creates the transport shared by all Meetup clients.
func NewTransport(baseURL string, options ...sources.Option) (*sources.Transport, error) {
	return sources.NewTransport("meetup", baseURL, options...)
}

// NewClient binds transport to an access token.
func NewClient(transport *sources.Transport, accessToken string) *Client {
	return &Client{transport: transport, token: accessToken}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.transport.Do(ctx, sources.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
		Token:  c.token,
	}, out)
}

func eventPath(urlname, eventID string, rest ...string) string {
	p := "/" + url.PathEscape(urlname) + "/events/" + url.PathEscape(eventID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// UpcomingEvents lists the upcoming events of a group. A single page of up
// to 200 events covers every group this bot manages.
func (c *Client) UpcomingEvents(ctx context.Context, urlname string) ([]Event, error) {
	var events []Event
	query := url.Values{"status": {"upcoming"}, "page": {"200"}}
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(urlname)+"/events", query, nil, &events); err != nil {
		return nil, fmt.Errorf("list events of %s: %w", urlname, err)
	}
	return events, nil
}

// GetEvent returns one event, or nil if it does not exist.
func (c *Client) GetEvent(ctx context.Context, urlname, eventID string) (*Event, error) {
	var event Event
	err := c.do(ctx, http.MethodGet, eventPath(urlname, eventID), nil, nil, &event)
	if sources.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s/%s: %w", urlname, eventID, err)
	}
	return &event, nil
}

// CreateEvent publishes a new event.
func (c *Client) CreateEvent(ctx context.Context, urlname string, event NewEvent) (*Event, error) {
	var created Event
	if err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(urlname)+"/events", nil, event, &created); err != nil {
		return nil, fmt.Errorf("create event in %s: %w", urlname, err)
	}
	return &created, nil
}

// CloneEvent copies an existing event. hook may edit the copy before it is
// published.
func (c *Client) CloneEvent(ctx context.Context, urlname, eventID string, hook func(*NewEvent) error) (*Event, error) {
	event, err := c.GetEvent(ctx, urlname, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, fmt.Errorf("event %s/%s was not found", urlname, eventID)
	}
	if event.Venue == nil {
		return nil, fmt.Errorf("clone %s/%s: %w", urlname, eventID, ErrNoVenue)
	}

	description := event.Description
	if event.SimpleHTMLDescription != nil {
		description = *event.SimpleHTMLDescription
	}
	next := NewEvent{
		Name:        event.Name,
		Description: description,
		Time:        event.Time,
		Duration:    event.Duration,
		HowToFindUs: event.HowToFindUs,
		RSVPLimit:   event.RSVPLimit,
		VenueID:     event.Venue.ID,
	}
	if event.FeaturedPhoto != nil {
		id := event.FeaturedPhoto.ID
		next.FeaturedPhotoID = &id
	}
	for _, host := range event.EventHosts {
		next.Hosts = append(next.Hosts, host.ID)
	}
	if event.RSVPRules != nil {
		limit := event.RSVPRules.GuestLimit
		next.GuestLimit = &limit
	}

	if hook != nil {
		if err := hook(&next); err != nil {
			return nil, fmt.Errorf("prepare clone of %s/%s: %w", urlname, eventID, err)
		}
	}
	return c.CreateEvent(ctx, urlname, next)
}

// RSVPs returns all RSVPs of an event.
func (c *Client) RSVPs(ctx context.Context, urlname, eventID string) ([]RSVP, error) {
	var rsvps []RSVP
	if err := c.do(ctx, http.MethodGet, eventPath(urlname, eventID, "rsvps"), nil, nil, &rsvps); err != nil {
		return nil, fmt.Errorf("get rsvps of %s/%s: %w", urlname, eventID, err)
	}
	return rsvps, nil
}

// RSVP answers an event on behalf of the client's user.
func (c *Client) RSVP(ctx context.Context, urlname, eventID string, attending bool) (*RSVP, error) {
	response := ResponseNo
	if attending {
		response = ResponseYes
	}
	var rsvp RSVP
	body := map[string]string{"response": response}
	if err := c.do(ctx, http.MethodPost, eventPath(urlname, eventID, "rsvps"), nil, body, &rsvp); err != nil {
		return nil, fmt.Errorf("rsvp to %s/%s: %w", urlname, eventID, err)
	}
	return &rsvp, nil
}

// CloseRSVPs stops further RSVPs to an event.
func (c *Client) CloseRSVPs(ctx context.Context, urlname, eventID string) error {
	if err := c.do(ctx, http.MethodPost, eventPath(urlname, eventID, "rsvps", "close"), nil, nil, nil); err != nil {
		return fmt.Errorf("close rsvps of %s/%s: %w", urlname, eventID, err)
	}
	return nil
}
