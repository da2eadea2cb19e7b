package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "upcoming", r.URL.Query().Get("status"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "value", body["key"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	tr, err := NewTransport("swissrpg", srv.URL)
	require.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	err = tr.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/events",
		Query:  map[string][]string{"status": {"upcoming"}},
		Body:   map[string]string{"key": "value"},
		Token:  "secret",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.ID)
}

func TestTransportClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantAuth   bool
		transient  bool
		wantNotFnd bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "not found", status: http.StatusNotFound, wantNotFnd: true},
		{name: "bad request", status: http.StatusBadRequest},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "server error", status: http.StatusBadGateway, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			tr, err := NewTransport("meetup", srv.URL)
			require.NoError(t, err)

			err = tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, errors.Is(err, ErrAuthentication))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.wantNotFnd, IsNotFound(err))
		})
	}
}

func TestTransportBreakerOpensOnTransientFailuresOnly(t *testing.T) {
	var calls atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusUnauthorized)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	tr, err := NewTransport("meetup", srv.URL, WithBreakerThreshold(2, time.Hour))
	require.NoError(t, err)
	ctx := context.Background()
	req := Request{Method: http.MethodGet, Path: "/x"}

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, tr.Do(ctx, req, nil), ErrAuthentication)
	}
	assert.EqualValues(t, 3, calls.Load(), "auth failures must not open the breaker")

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		require.True(t, IsTransient(tr.Do(ctx, req, nil)))
	}
	assert.EqualValues(t, 5, calls.Load())

	err = tr.Do(ctx, req, nil)
	require.True(t, IsTransient(err))
	assert.EqualValues(t, 5, calls.Load(), "open breaker must short-circuit")
}

func TestTransportNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr, err := NewTransport("swissrpg", url)
	require.NoError(t, err)

	err = tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/api/events"}, nil)
	assert.True(t, IsTransient(err))
}

func TestNewTransportRejectsRelativeURL(t *testing.T) {
	_, err := NewTransport("swissrpg", "/api")
	require.Error(t, err)
}
