// Package api serves the schedule-session web flow and the internal API
// used by the chat bot.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dthul/discord-bot/internal/auth"
	"github.com/dthul/discord-bot/internal/flow"
	"github.com/dthul/discord-bot/internal/ingestion"
	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/metrics"
	"github.com/dthul/discord-bot/internal/models"
)

const maxFormBytes = 32 << 10

// FlowService is the scheduling flow as used by the handlers.
type FlowService interface {
	Start(ctx context.Context, seriesID models.EventSeriesID) (*flow.Flow, string, error)
	Retrieve(ctx context.Context, id uint64) (*flow.Flow, *models.Event, error)
	Schedule(ctx context.Context, id uint64, req flow.Request) (*flow.Result, error)
}

// JobTrigger starts a sync job outside its schedule.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// Deps holds everything the router serves.
type Deps struct {
	Flows    FlowService
	Jobs     JobTrigger
	Statuses func() []ingestion.ConnectorStatus
	// Health checks the backing stores for /healthz.
	Health       func(ctx context.Context) error
	ShuttingDown func() bool
	Location     *time.Location
	JWTSecret    string

	HTTPMetrics    *metrics.HTTPCollector
	MetricsHandler http.Handler
	// JobContext is the parent of triggered jobs. It outlives requests.
	JobContext context.Context
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handler serves the HTTP API.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(deps Deps) chi.Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.ShuttingDown == nil {
		deps.ShuttingDown = func() bool { return false }
	}
	if deps.JobContext == nil {
		deps.JobContext = context.Background()
	}
	h := &Handler{deps: deps, logger: logging.Component(deps.Logger, "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.InstrumentHandler)
	}

	r.Get("/healthz", h.Healthz)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/schedule_session/{flowID}", h.GetScheduleSession)
	r.Post("/schedule_session/{flowID}", h.PostScheduleSession)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(deps.JWTSecret))
		r.Post("/series/{seriesID}/schedule-flow", h.CreateFlow)
		r.Post("/sync/{source}", h.TriggerSync)
		r.Get("/sync/status", h.SyncStatus)
	})

	return r
}
