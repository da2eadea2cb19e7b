package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/reconcile"
	"github.com/dthul/discord-bot/internal/sources/swissrpg"
)

var (
	// ErrNoPriorEvent is returned when the series has no event to continue.
	ErrNoPriorEvent = errors.New("no prior event in series")
	// ErrUnknownSource is returned when the latest event has no binding.
	ErrUnknownSource = errors.New("cannot determine the source of the latest event")
	// ErrSwissRPGUnavailable is returned when a session must be scheduled on
	// SwissRPG but no client is configured.
	ErrSwissRPGUnavailable = errors.New("swissrpg client not available")
	// ErrNoSeriesLink is returned when a SwissRPG event's series has no
	// recorded SwissRPG series id.
	ErrNoSeriesLink = errors.New("series has no swissrpg series id")
)

// DefaultSessionMinutes is the length of sessions scheduled on SwissRPG.
const DefaultSessionMinutes = 240

// Path names the way a session was scheduled.
type Path string

const (
	PathDirect  Path = "direct"
	PathMigrate Path = "migrate"
	PathMeetup  Path = "meetup"
)

// EventStore is the read side of the canonical store used by the flow.
type EventStore interface {
	LatestEvent(ctx context.Context, id models.EventSeriesID) (*models.Event, error)
	Series(ctx context.Context, id models.EventSeriesID) (*models.EventSeries, error)
	SetSwissRPGSeriesID(ctx context.Context, id models.EventSeriesID, link uuid.UUID) error
	HostDiscordIDs(ctx context.Context, id models.EventID) ([]uint64, error)
	ParticipantDiscordIDs(ctx context.Context, id models.EventID) ([]uint64, error)
}

// SwissRPGScheduler is the subset of the SwissRPG client the flow calls.
type SwissRPGScheduler interface {
	ScheduleSession(ctx context.Context, series uuid.UUID, req swissrpg.ScheduleSessionRequest) (*swissrpg.Event, error)
	MigrateEvent(ctx context.Context, req swissrpg.MigrateEventRequest) (*swissrpg.Event, error)
}

// Reconciler folds a freshly created event into the canonical model.
type Reconciler interface {
	Reconcile(ctx context.Context, ev models.SourceEvent) (reconcile.Result, error)
}

// Recorder counts schedule submissions.
type Recorder interface {
	ObserveFlow(path string, err error)
}

// Request is a validated schedule-session submission.
type Request struct {
	Start time.Time
	// Duration applies to Meetup continuations; SwissRPG sessions always
	// last DefaultSessionMinutes.
	Duration      time.Duration
	OpenEvent     bool
	TransferRSVPs bool
}

// Result is what the user sees after scheduling.
type Result struct {
	Source      models.Source `json:"source"`
	Path        Path          `json:"path"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	ClosedRSVPs bool          `json:"closed_rsvps"`
	// TransferredAllRSVPs is set when an RSVP transfer was requested.
	TransferredAllRSVPs *bool `json:"transferred_all_rsvps,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithSwissRPG enables scheduling on SwissRPG.
func WithSwissRPG(client SwissRPGScheduler) Option {
	return func(s *Service) { s.swissrpg = client }
}

// WithMeetup enables continuing series directly on Meetup.
func WithMeetup(m *MeetupContinuer) Option {
	return func(s *Service) { s.meetup = m }
}

// WithRecorder reports submissions to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithBaseURL sets the public prefix of flow links.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) { s.baseURL = baseURL }
}

// Service schedules the next session of a series.
type Service struct {
	flows    *Store
	events   EventStore
	swissrpg SwissRPGScheduler
	meetup   *MeetupContinuer
	recorder Recorder
	baseURL  string
	logger   *slog.Logger
}

// NewService creates a scheduling service.
func NewService(flows *Store, events EventStore, logger *slog.Logger, options ...Option) *Service {
	s := &Service{
		flows:  flows,
		events: events,
		logger: logging.Component(logger, "flow"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start creates a flow for seriesID and returns it with its public link.
func (s *Service) Start(ctx context.Context, seriesID models.EventSeriesID) (*Flow, string, error) {
	f, err := s.flows.Create(ctx, seriesID)
	if err != nil {
		return nil, "", err
	}
	return f, s.Link(f.ID), nil
}

// Link returns the public URL of a flow.
func (s *Service) Link(id uint64) string {
	return fmt.Sprintf("%s/schedule_session/%d", s.baseURL, id)
}

// Retrieve returns the flow and the latest event of its series.
func (s *Service) Retrieve(ctx context.Context, id uint64) (*Flow, *models.Event, error) {
	f, err := s.flows.Retrieve(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	latest, err := s.events.LatestEvent(ctx, f.SeriesID)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest event of series %d: %w", f.SeriesID, err)
	}
	if latest == nil {
		return nil, nil, fmt.Errorf("series %d: %w", f.SeriesID, ErrNoPriorEvent)
	}
	return f, latest, nil
}

// Schedule completes flow id by scheduling the next session. Only one
// submission at a time may hold the flow; a concurrent one gets
// ErrFlowInProgress. The flow is deleted only on success; on failure the
// claim is released and the same link can be retried until it expires.
func (s *Service) Schedule(ctx context.Context, id uint64, req Request) (*Result, error) {
	f, latest, err := s.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("flow_id", f.ID, "event_series_id", f.SeriesID, "latest_event_id", latest.ID)

	if err := s.flows.Claim(ctx, f.ID); err != nil {
		if errors.Is(err, ErrFlowInProgress) {
			logger.Warn("flow already being scheduled")
		}
		return nil, err
	}

	result, err := s.schedule(ctx, f, latest, req, logger)
	if s.recorder != nil {
		path := "unknown"
		if result != nil {
			path = string(result.Path)
		}
		s.recorder.ObserveFlow(path, err)
	}
	if err != nil {
		logger.Error("failed to schedule session", "error", err)
		if rerr := s.flows.Release(context.WithoutCancel(ctx), f.ID); rerr != nil {
			logger.Warn("could not release flow claim", "error", rerr)
		}
		return nil, err
	}

	if err := s.flows.Delete(ctx, f.ID); err != nil {
		logger.Warn("scheduled session but could not delete flow", "error", err)
	}
	logger.Info("scheduled session", "path", result.Path, "url", result.URL)
	return result, nil
}

func (s *Service) schedule(ctx context.Context, f *Flow, latest *models.Event, req Request, logger *slog.Logger) (*Result, error) {
	source, ok := latest.Source()
	if !ok {
		return nil, fmt.Errorf("event %d: %w", latest.ID, ErrUnknownSource)
	}

	if s.swissrpg == nil {
		if source == models.SourceMeetup && s.meetup != nil {
			return s.meetup.Continue(ctx, latest, req)
		}
		return nil, ErrSwissRPGUnavailable
	}

	series, err := s.events.Series(ctx, f.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("load series %d: %w", f.SeriesID, err)
	}
	if series.SwissRPGSeriesID != nil {
		return s.scheduleOnSwissRPG(ctx, *series.SwissRPGSeriesID, req, PathDirect)
	}
	if source == models.SourceSwissRPG {
		return nil, fmt.Errorf("series %d: %w", f.SeriesID, ErrNoSeriesLink)
	}

	link, err := s.migrate(ctx, f.SeriesID, latest, logger)
	if err != nil {
		return nil, err
	}
	return s.scheduleOnSwissRPG(ctx, link, req, PathMigrate)
}

// migrate recreates the latest Meetup event as a SwissRPG series and
// records the link on the canonical series.
func (s *Service) migrate(ctx context.Context, seriesID models.EventSeriesID, latest *models.Event, logger *slog.Logger) (uuid.UUID, error) {
	if latest.MeetupEvent == nil {
		return uuid.Nil, fmt.Errorf("event %d has no meetup binding to migrate", latest.ID)
	}
	legacyID, err := strconv.ParseInt(latest.MeetupEvent.MeetupID, 10, 64)
	if err != nil {
		return uuid.Nil, fmt.Errorf("meetup event id %q is not numeric: %w", latest.MeetupEvent.MeetupID, err)
	}

	hosts, err := s.events.HostDiscordIDs(ctx, latest.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load hosts of event %d: %w", latest.ID, err)
	}
	attendees, err := s.events.ParticipantDiscordIDs(ctx, latest.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load participants of event %d: %w", latest.ID, err)
	}

	description := latest.Description
	migrated, err := s.swissrpg.MigrateEvent(ctx, swissrpg.MigrateEventRequest{
		Title:       latest.Title,
		Start:       swissrpg.FormatTime(latest.StartTime),
		Organisers:  formatIDs(hosts),
		Attendees:   formatIDs(attendees),
		LegacyID:    legacyID,
		Description: &description,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("migrate meetup event %d: %w", legacyID, err)
	}
	logger.Info("migrated series to swissrpg", "meetup_id", legacyID, "swissrpg_event_series_id", migrated.UUID)

	// The next SwissRPG pass records the link from the legacy id as well.
	if err := s.events.SetSwissRPGSeriesID(ctx, seriesID, migrated.UUID); err != nil {
		logger.Warn("could not record swissrpg series id", "swissrpg_event_series_id", migrated.UUID, "error", err)
	}
	return migrated.UUID, nil
}

func (s *Service) scheduleOnSwissRPG(ctx context.Context, series uuid.UUID, req Request, path Path) (*Result, error) {
	ev, err := s.swissrpg.ScheduleSession(ctx, series, swissrpg.ScheduleSessionRequest{
		Start:          swissrpg.FormatTime(req.Start),
		Duration:       DefaultSessionMinutes,
		IncludePlayers: true,
	})
	if err != nil {
		return &Result{Path: path}, fmt.Errorf("schedule session on swissrpg series %s: %w", series, err)
	}
	return &Result{
		Source: models.SourceSwissRPG,
		Path:   path,
		Title:  ev.Title,
		URL:    ev.PublicURL,
	}, nil
}

func formatIDs(ids []uint64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatUint(id, 10))
	}
	return out
}

// asyncWork tracks background reconciliations so shutdown can wait for them.
type asyncWork struct {
	wg sync.WaitGroup
}

func (a *asyncWork) Go(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Wait blocks until all background work is done or ctx expires.
func (a *asyncWork) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until background reconciliations of continued events are
// done or ctx expires.
func (s *Service) Wait(ctx context.Context) error {
	if s.meetup == nil {
		return nil
	}
	return s.meetup.background.Wait(ctx)
}
