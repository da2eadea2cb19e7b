package meetup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/sources"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport, err := NewTransport(srv.URL)
	require.NoError(t, err)
	return NewClient(transport, "token")
}

func TestClientUpcomingEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/SwissRPG-Zurich/events", r.URL.Path)
		assert.Equal(t, "upcoming", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"301","name":"Curse of Strahd Session 3","time":1792000000000,"yes_rsvp_count":2}]`))
	})

	events, err := client.UpcomingEvents(context.Background(), "SwissRPG-Zurich")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "301", events[0].ID)
	assert.Equal(t, time.UnixMilli(1792000000000).UTC(), events[0].StartTime())
}

func TestClientGetEventNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"code":"event_error"}]}`, http.StatusNotFound)
	})

	event, err := client.GetEvent(context.Background(), "group", "404")
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestClientUnauthorizedIsAuthenticationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.UpcomingEvents(context.Background(), "group")
	require.ErrorIs(t, err, sources.ErrAuthentication)
}

func TestClientCloneEvent(t *testing.T) {
	limit := 5
	original := Event{
		ID:            "301",
		Name:          "Curse of Strahd Session 3",
		Description:   "plain",
		Time:          1792000000000,
		Duration:      4 * 3600 * 1000,
		RSVPLimit:     &limit,
		RSVPRules:     &RSVPRules{GuestLimit: 1},
		Venue:         &Venue{ID: 42},
		EventHosts:    []Member{{ID: 7, Name: "dm"}},
		FeaturedPhoto: &Photo{ID: 9},
	}
	html := "<p>rich</p>"
	original.SimpleHTMLDescription = &html

	var created NewEvent
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/group/events/301":
			_ = json.NewEncoder(w).Encode(original)
		case r.Method == http.MethodPost && r.URL.Path == "/group/events":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_ = json.NewEncoder(w).Encode(Event{ID: "302", Name: created.Name, Link: "https://meetup.example/302"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	next := time.Date(2026, 11, 8, 17, 30, 0, 0, time.UTC)
	clone, err := client.CloneEvent(context.Background(), "group", "301", func(n *NewEvent) error {
		n.Name = "Curse of Strahd Session 4"
		n.SetStartTime(next)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "302", clone.ID)

	assert.Equal(t, "Curse of Strahd Session 4", created.Name)
	assert.Equal(t, "<p>rich</p>", created.Description)
	assert.Equal(t, next.UnixMilli(), created.Time)
	assert.Equal(t, int64(42), created.VenueID)
	assert.Equal(t, []uint64{7}, created.Hosts)
	require.NotNil(t, created.RSVPLimit)
	assert.Equal(t, 5, *created.RSVPLimit)
	require.NotNil(t, created.GuestLimit)
	assert.Equal(t, 1, *created.GuestLimit)
	require.NotNil(t, created.FeaturedPhotoID)
	assert.Equal(t, int64(9), *created.FeaturedPhotoID)
}

func TestClientCloneEventRequiresVenue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Event{ID: "301", Name: "Online one"})
	})

	_, err := client.CloneEvent(context.Background(), "group", "301", nil)
	require.ErrorIs(t, err, ErrNoVenue)
}

func TestClientRSVPAndClose(t *testing.T) {
	var rsvpBody map[string]string
	var closed bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/group/events/302/rsvps":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rsvpBody))
			_ = json.NewEncoder(w).Encode(RSVP{Member: Member{ID: 8}, Response: ResponseYes})
		case "/group/events/302/rsvps/close":
			closed = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	rsvp, err := client.RSVP(ctx, "group", "302", true)
	require.NoError(t, err)
	assert.Equal(t, ResponseYes, rsvp.Response)
	assert.Equal(t, map[string]string{"response": "yes"}, rsvpBody)

	require.NoError(t, client.CloseRSVPs(ctx, "group", "302"))
	assert.True(t, closed)
}

func TestNormalize(t *testing.T) {
	limit := 6
	ev := Event{
		ID:           "302",
		Name:         "Curse of Strahd Session 4",
		Description:  "More horror\n[campaign 301]\n[channel 123456789012345678]",
		Time:         1792000000000,
		Link:         "https://meetup.example/302",
		RSVPLimit:    &limit,
		YesRSVPCount: 2,
		EventHosts:   []Member{{ID: 7, Name: "dm"}},
		Group:        Group{URLName: "SwissRPG-Zurich"},
	}
	rsvps := []RSVP{
		{Member: Member{ID: 7}, Response: ResponseYes},
		{Member: Member{ID: 8}, Response: ResponseYes},
		{Member: Member{ID: 9}, Response: ResponseNo},
	}

	got := Normalize("fallback", ev, rsvps)
	assert.Equal(t, models.SourceMeetup, got.Source)
	assert.Equal(t, "SwissRPG-Zurich", got.URLName)
	assert.Equal(t, "https://meetup.example/302", got.URL)
	assert.Equal(t, 4, got.NumFreeSpots)
	assert.False(t, got.RSVPsClosed)
	assert.False(t, got.StartsSeries)
	require.NotNil(t, got.LegacyRef)
	assert.Equal(t, models.EventRef{Source: models.SourceMeetup, ExternalID: "301"}, *got.LegacyRef)
	require.NotNil(t, got.IndicatedChannelID)
	assert.Equal(t, uint64(123456789012345678), *got.IndicatedChannelID)
	assert.Equal(t, []models.Person{{Kind: models.PersonMeetup, ExternalID: "7", Name: "dm"}}, got.Hosts)
	require.Len(t, got.Attendees, 2)
	assert.Equal(t, "8", got.Attendees[1].ExternalID)
}

func TestNormalizeShortcodes(t *testing.T) {
	tests := []struct {
		name        string
		description string
		online      bool
		check       func(t *testing.T, got models.SourceEvent)
	}{
		{
			name:        "new campaign",
			description: "[new campaign] Starts here",
			check: func(t *testing.T, got models.SourceEvent) {
				assert.True(t, got.StartsSeries)
				assert.Equal(t, models.SeriesTypeCampaign, got.SeriesType)
				assert.Nil(t, got.LegacyRef)
			},
		},
		{
			name:        "new adventure",
			description: "[new adventure] One shot",
			check: func(t *testing.T, got models.SourceEvent) {
				assert.True(t, got.StartsSeries)
				assert.Equal(t, models.SeriesTypeAdventure, got.SeriesType)
			},
		},
		{
			name:        "self reference is not a legacy link",
			description: "[campaign 302]",
			check: func(t *testing.T, got models.SourceEvent) {
				assert.Nil(t, got.LegacyRef)
			},
		},
		{
			name:        "closed shortcode",
			description: "[closed]",
			check: func(t *testing.T, got models.SourceEvent) {
				assert.True(t, got.RSVPsClosed)
			},
		},
		{
			name:        "online shortcode",
			description: "[online]",
			check: func(t *testing.T, got models.SourceEvent) {
				assert.True(t, got.IsOnline)
			},
		},
		{
			name:   "online flag",
			online: true,
			check: func(t *testing.T, got models.SourceEvent) {
				assert.True(t, got.IsOnline)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("group", Event{ID: "302", Description: tt.description, IsOnlineEvent: tt.online}, nil)
			tt.check(t, got)
		})
	}
}

// clientProvider serves one fixed client and counts refreshes.
type clientProvider struct {
	client    *Client
	refreshes atomic.Int32
}

func (p *clientProvider) CurrentClient(context.Context) (*Client, bool, error) {
	return p.client, true, nil
}

func (p *clientProvider) Refresh(context.Context) (*Client, error) {
	p.refreshes.Add(1)
	return p.client, nil
}

func TestConnectorFetchUpcoming(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/group/events":
			_, _ = w.Write([]byte(`[
				{"id":"301","name":"Empty","time":1792000000000,"yes_rsvp_count":0,"group":{"urlname":"group"}},
				{"id":"302","name":"Full","time":1792000000000,"yes_rsvp_count":1,"group":{"urlname":"group"}}
			]`))
		case "/group/events/302/rsvps":
			_, _ = w.Write([]byte(`[{"member":{"id":8,"name":"p"},"response":"yes"}]`))
		case "/broken/events":
			w.WriteHeader(http.StatusBadGateway)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	provider := &clientProvider{client: client}

	c := NewConnector(provider, []string{"group", "broken"}, 0, nil)
	assert.Equal(t, models.SourceMeetup, c.Source())

	got, err := c.FetchUpcoming(context.Background())
	require.NoError(t, err, "one failing group must not fail the pass")
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Attendees)
	require.Len(t, got[1].Attendees, 1)
	assert.Equal(t, "8", got[1].Attendees[0].ExternalID)
	assert.Zero(t, provider.refreshes.Load())
}

func TestConnectorAllGroupsFailing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := NewConnector(&clientProvider{client: client}, []string{"group"}, 0, nil)
	_, err := c.FetchUpcoming(context.Background())
	require.Error(t, err)
	assert.True(t, sources.IsTransient(err))
}
