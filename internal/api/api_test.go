package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dthul/discord-bot/internal/auth"
	"github.com/dthul/discord-bot/internal/flow"
	"github.com/dthul/discord-bot/internal/ingestion"
	"github.com/dthul/discord-bot/internal/metrics"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/scheduler"
)

const jwtSecret = "api-test-secret"

var cet = time.FixedZone("CET", 3600)

type fakeFlows struct {
	flows      map[uint64]models.EventSeriesID
	latest     *models.Event
	scheduleFn func(req flow.Request) (*flow.Result, error)
	requests   []flow.Request
}

func (f *fakeFlows) Start(_ context.Context, seriesID models.EventSeriesID) (*flow.Flow, string, error) {
	id := uint64(len(f.flows) + 100)
	f.flows[id] = seriesID
	return &flow.Flow{ID: id, SeriesID: seriesID}, fmt.Sprintf("https://bot.example/schedule_session/%d", id), nil
}

func (f *fakeFlows) Retrieve(_ context.Context, id uint64) (*flow.Flow, *models.Event, error) {
	seriesID, ok := f.flows[id]
	if !ok {
		return nil, nil, flow.ErrFlowNotFound
	}
	if f.latest == nil {
		return nil, nil, flow.ErrNoPriorEvent
	}
	return &flow.Flow{ID: id, SeriesID: seriesID}, f.latest, nil
}

func (f *fakeFlows) Schedule(_ context.Context, id uint64, req flow.Request) (*flow.Result, error) {
	if _, ok := f.flows[id]; !ok {
		return nil, flow.ErrFlowNotFound
	}
	f.requests = append(f.requests, req)
	result, err := f.scheduleFn(req)
	if err == nil {
		delete(f.flows, id)
	}
	return result, err
}

type fakeJobs struct {
	running map[string]bool
	known   map[string]bool
	started []string
}

func (j *fakeJobs) Trigger(_ context.Context, name string) error {
	if !j.known[name] {
		return scheduler.ErrUnknownJob
	}
	if j.running[name] {
		return scheduler.ErrJobRunning
	}
	j.started = append(j.started, name)
	return nil
}

func newTestRouter(t *testing.T, flows *fakeFlows, jobs *fakeJobs, shuttingDown *bool) http.Handler {
	t.Helper()
	registry := metrics.NewRegistry()
	collector, err := metrics.NewHTTPCollector(registry)
	require.NoError(t, err)

	return NewRouter(Deps{
		Flows: flows,
		Jobs:  jobs,
		Statuses: func() []ingestion.ConnectorStatus {
			return []ingestion.ConnectorStatus{{Source: models.SourceMeetup, Healthy: true, TotalRuns: 3}}
		},
		ShuttingDown:   func() bool { return shuttingDown != nil && *shuttingDown },
		Location:       cet,
		JWTSecret:      jwtSecret,
		HTTPMetrics:    collector,
		MetricsHandler: metrics.Handler(registry),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:            func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) },
	})
}

func latestEvent() *models.Event {
	return &models.Event{
		ID:        7,
		SeriesID:  3,
		StartTime: time.Date(2026, 1, 3, 18, 30, 0, 0, time.UTC),
		Title:     "Curse of Strahd [Session 4]",
		MeetupEvent: &models.MeetupEvent{
			MeetupID: "271234567",
			URLName:  "SwissRPG-Zurich",
			URL:      "https://www.meetup.com/SwissRPG-Zurich/events/271234567/",
		},
	}
}

func decodeMessage(t *testing.T, body io.Reader) Message {
	t.Helper()
	var msg Message
	require.NoError(t, json.NewDecoder(body).Decode(&msg))
	return msg
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func validForm() url.Values {
	return url.Values{
		"year":           {"2026"},
		"month":          {"1"},
		"day":            {"10"},
		"hour":           {"19"},
		"minute":         {"30"},
		"duration":       {"180"},
		"transfer_rsvps": {"yes"},
	}
}

func TestGetScheduleSessionPrefill(t *testing.T) {
	flows := &fakeFlows{flows: map[uint64]models.EventSeriesID{42: 3}, latest: latestEvent()}
	router := newTestRouter(t, flows, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/schedule_session/42", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var form ScheduleSessionForm
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&form))
	assert.Equal(t, "Curse of Strahd [Session 4]", form.Title)
	assert.Equal(t, "https://www.meetup.com/SwissRPG-Zurich/events/271234567/", form.Link)
	assert.Equal(t, ProposedTime{Year: 2026, Month: 1, Day: 10, Hour: 19, Minute: 30}, form.Proposed)
	assert.Equal(t, []int{2026, 2027}, form.SelectableYears)
	assert.Equal(t, flow.DefaultSessionMinutes, form.DurationMinutes)
}

func TestGetScheduleSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		latest *models.Event
		status int
		title  string
	}{
		{"unknown flow", "/schedule_session/9", latestEvent(), http.StatusGone, "Link expired"},
		{"malformed id", "/schedule_session/not-a-number", latestEvent(), http.StatusGone, "Link expired"},
		{"no prior event", "/schedule_session/42", nil, http.StatusConflict, "No prior event found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flows := &fakeFlows{flows: map[uint64]models.EventSeriesID{42: 3}, latest: tt.latest}
			router := newTestRouter(t, flows, nil, nil)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.title, decodeMessage(t, rr.Body).Error)
		})
	}
}

func TestPostScheduleSession(t *testing.T) {
	yes := true
	flows := &fakeFlows{
		flows:  map[uint64]models.EventSeriesID{42: 3},
		latest: latestEvent(),
		scheduleFn: func(req flow.Request) (*flow.Result, error) {
			return &flow.Result{
				Source:              models.SourceMeetup,
				Path:                flow.PathMeetup,
				Title:               "Curse of Strahd [Session 5]",
				URL:                 "https://www.meetup.com/SwissRPG-Zurich/events/271234999/",
				ClosedRSVPs:         true,
				TransferredAllRSVPs: &yes,
			}, nil
		},
	}
	router := newTestRouter(t, flows, nil, nil)

	rr := postForm(router, "/schedule_session/42", validForm())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result flow.Result
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&result))
	assert.Equal(t, "Curse of Strahd [Session 5]", result.Title)
	require.NotNil(t, result.TransferredAllRSVPs)
	assert.True(t, *result.TransferredAllRSVPs)

	require.Len(t, flows.requests, 1)
	req := flows.requests[0]
	assert.True(t, req.Start.Equal(time.Date(2026, 1, 10, 18, 30, 0, 0, time.UTC)))
	assert.Equal(t, 3*time.Hour, req.Duration)
	assert.True(t, req.TransferRSVPs)
	assert.False(t, req.OpenEvent)

	// The flow is one-shot.
	rr = postForm(router, "/schedule_session/42", validForm())
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Len(t, flows.requests, 1)
}

func TestPostScheduleSessionInvalidData(t *testing.T) {
	flows := &fakeFlows{
		flows:  map[uint64]models.EventSeriesID{42: 3},
		latest: latestEvent(),
		scheduleFn: func(flow.Request) (*flow.Result, error) {
			t.Fatal("schedule must not be called for invalid input")
			return nil, nil
		},
	}
	router := newTestRouter(t, flows, nil, nil)

	form := validForm()
	form.Set("month", "13")
	rr := postForm(router, "/schedule_session/42", form)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	msg := decodeMessage(t, rr.Body)
	assert.Equal(t, "Invalid data", msg.Error)
	assert.Equal(t, "Seems like the specified date is invalid", msg.Message)

	form = validForm()
	form.Del("minute")
	rr = postForm(router, "/schedule_session/42", form)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Seems like the submitted data is incomplete", decodeMessage(t, rr.Body).Message)

	assert.Contains(t, flows.flows, uint64(42))
}

func TestPostScheduleSessionFailureKeepsLink(t *testing.T) {
	flows := &fakeFlows{
		flows:  map[uint64]models.EventSeriesID{42: 3},
		latest: latestEvent(),
		scheduleFn: func(flow.Request) (*flow.Result, error) {
			return nil, errors.New("swissrpg: 500 Internal Server Error")
		},
	}
	router := newTestRouter(t, flows, nil, nil)

	rr := postForm(router, "/schedule_session/42", validForm())
	require.Equal(t, http.StatusBadGateway, rr.Code)
	msg := decodeMessage(t, rr.Body)
	assert.Equal(t, "Scheduling failed", msg.Error)
	assert.Equal(t, "Error: swissrpg: 500 Internal Server Error", msg.Message)
	assert.Contains(t, flows.flows, uint64(42))
}

func TestPostScheduleSessionAlreadyInProgress(t *testing.T) {
	flows := &fakeFlows{
		flows:  map[uint64]models.EventSeriesID{42: 3},
		latest: latestEvent(),
		scheduleFn: func(flow.Request) (*flow.Result, error) {
			return nil, flow.ErrFlowInProgress
		},
	}
	router := newTestRouter(t, flows, nil, nil)

	rr := postForm(router, "/schedule_session/42", validForm())
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Already in progress", decodeMessage(t, rr.Body).Error)
}

func TestPostScheduleSessionWhileShuttingDown(t *testing.T) {
	shuttingDown := true
	flows := &fakeFlows{flows: map[uint64]models.EventSeriesID{42: 3}, latest: latestEvent()}
	router := newTestRouter(t, flows, nil, &shuttingDown)

	rr := postForm(router, "/schedule_session/42", validForm())
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, flows.requests)
}

func authorized(t *testing.T, method, path string) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("chat-bot", jwtSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCreateFlow(t *testing.T) {
	flows := &fakeFlows{flows: map[uint64]models.EventSeriesID{}}
	router := newTestRouter(t, flows, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/series/3/schedule-flow", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authorized(t, http.MethodPost, "/api/series/3/schedule-flow"))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created FlowCreated
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "100", created.FlowID)
	assert.Equal(t, "https://bot.example/schedule_session/100", created.Link)
	assert.Equal(t, models.EventSeriesID(3), flows.flows[100])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authorized(t, http.MethodPost, "/api/series/zero/schedule-flow"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTriggerSync(t *testing.T) {
	jobs := &fakeJobs{
		known:   map[string]bool{scheduler.JobMeetupSync: true, scheduler.JobSwissRPGSync: true},
		running: map[string]bool{scheduler.JobSwissRPGSync: true},
	}
	router := newTestRouter(t, &fakeFlows{flows: map[uint64]models.EventSeriesID{}}, jobs, nil)

	tests := []struct {
		source string
		status int
	}{
		{"meetup", http.StatusAccepted},
		{"swissrpg", http.StatusConflict},
		{"eventbrite", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, authorized(t, http.MethodPost, "/api/sync/"+tt.source))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
	assert.Equal(t, []string{scheduler.JobMeetupSync}, jobs.started)
}

func TestSyncStatusAndMetrics(t *testing.T) {
	router := newTestRouter(t, &fakeFlows{flows: map[uint64]models.EventSeriesID{}}, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authorized(t, http.MethodGet, "/api/sync/status"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Sources []ingestion.ConnectorStatus `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, models.SourceMeetup, body.Sources[0].Source)
	assert.Equal(t, int64(3), body.Sources[0].TotalRuns)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/api/sync/status"`)
}
