// Package swissrpg is the adapter for the SwissRPG event platform.
package swissrpg

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/sources"
)

// Client talks to the SwissRPG API with a static bearer token.
type Client struct {
	transport *sources.Transport
	token     string
}

// NewClient creates a SwissRPG client.
func NewClient(baseURL, token string, options ...sources.Option) (*Client, error) {
	transport, err := sources.NewTransport("swissrpg", baseURL, options...)
	if err != nil {
		return nil, err
	}
	return &Client{transport: transport, token: token}, nil
}

// GetEvents lists all event series with their current and upcoming sessions.
func (c *Client) GetEvents(ctx context.Context) ([]Event, error) {
	var events []Event
	if err := c.transport.Do(ctx, sources.Request{
		Method: http.MethodGet,
		Path:   "/api/events",
		Token:  c.token,
	}, &events); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// ScheduleSession adds a session to the series and returns the updated series.
func (c *Client) ScheduleSession(ctx context.Context, series uuid.UUID, req ScheduleSessionRequest) (*Event, error) {
	var event Event
	if err := c.transport.Do(ctx, sources.Request{
		Method: http.MethodPut,
		Path:   "/api/events/" + series.String(),
		Body:   req,
		Token:  c.token,
	}, &event); err != nil {
		return nil, fmt.Errorf("schedule session on %s: %w", series, err)
	}
	return &event, nil
}

// MigrateEvent creates a new series from a legacy event.
func (c *Client) MigrateEvent(ctx context.Context, req MigrateEventRequest) (*Event, error) {
	var event Event
	if err := c.transport.Do(ctx, sources.Request{
		Method: http.MethodPost,
		Path:   "/api/migrate",
		Body:   req,
		Token:  c.token,
	}, &event); err != nil {
		return nil, fmt.Errorf("migrate event %d: %w", req.LegacyID, err)
	}
	return &event, nil
}

// DeleteEvent removes a series.
func (c *Client) DeleteEvent(ctx context.Context, series uuid.UUID) error {
	if err := c.transport.Do(ctx, sources.Request{
		Method: http.MethodDelete,
		Path:   "/api/events/" + series.String(),
		Token:  c.token,
	}, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", series, err)
	}
	return nil
}
