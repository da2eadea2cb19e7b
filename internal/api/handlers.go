package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dthul/discord-bot/internal/auth"
	"github.com/dthul/discord-bot/internal/flow"
	"github.com/dthul/discord-bot/internal/ingestion"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/scheduler"
)

// Message is a user-facing outcome with a heading and a detail line.
type Message struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ProposedTime is a wall-clock time in the event timezone.
type ProposedTime struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ScheduleSessionForm prefills the schedule-session form.
type ScheduleSessionForm struct {
	Title           string       `json:"title"`
	Link            string       `json:"link,omitempty"`
	Proposed        ProposedTime `json:"proposed"`
	SelectableYears []int        `json:"selectable_years"`
	DurationMinutes int          `json:"duration"`
}

// FlowCreated is the response to creating a flow.
type FlowCreated struct {
	FlowID string `json:"flow_id"`
	Link   string `json:"link"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, Message{Error: title, Message: message})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeMessage(w, http.StatusServiceUnavailable, "Unhealthy", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeFlowError maps retrieval errors shared by GET and POST.
func (h *Handler) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrFlowNotFound):
		writeMessage(w, http.StatusGone, "Link expired", "Please request a new link")
	case errors.Is(err, flow.ErrNoPriorEvent):
		writeMessage(w, http.StatusConflict, "No prior event found", "Cannot schedule a continuation session without an initial event")
	default:
		h.logger.Error("failed to load flow", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error", "Please try again later")
	}
}

// GetScheduleSession handles GET /schedule_session/{flowID}
func (h *Handler) GetScheduleSession(w http.ResponseWriter, r *http.Request) {
	id, err := flow.ParseID(chi.URLParam(r, "flowID"))
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	_, latest, err := h.deps.Flows.Retrieve(r.Context(), id)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	next := flow.ProposeStart(latest.StartTime, h.deps.Now(), h.deps.Location)
	writeJSON(w, http.StatusOK, ScheduleSessionForm{
		Title: latest.Title,
		Link:  latest.URL(),
		Proposed: ProposedTime{
			Year:   next.Year(),
			Month:  int(next.Month()),
			Day:    next.Day(),
			Hour:   next.Hour(),
			Minute: next.Minute(),
		},
		SelectableYears: []int{next.Year(), next.Year() + 1},
		DurationMinutes: flow.DefaultSessionMinutes,
	})
}

// PostScheduleSession handles POST /schedule_session/{flowID}
func (h *Handler) PostScheduleSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.ShuttingDown() {
		writeMessage(w, http.StatusServiceUnavailable, "Shutting down", "The server is restarting, please try again in a minute")
		return
	}

	id, err := flow.ParseID(chi.URLParam(r, "flowID"))
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	if _, _, err := h.deps.Flows.Retrieve(r.Context(), id); err != nil {
		h.writeFlowError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid data", "Seems like the submitted data could not be read")
		return
	}
	req, err := flow.ParseForm(r.PostForm, h.deps.Location)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid data", capitalize(err.Error()))
		return
	}

	result, err := h.deps.Flows.Schedule(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, flow.ErrFlowNotFound) || errors.Is(err, flow.ErrNoPriorEvent) {
			h.writeFlowError(w, err)
			return
		}
		if errors.Is(err, flow.ErrFlowInProgress) {
			writeMessage(w, http.StatusConflict, "Already in progress", "This session is already being scheduled")
			return
		}
		writeMessage(w, http.StatusBadGateway, "Scheduling failed", fmt.Sprintf("Error: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateFlow handles POST /api/series/{seriesID}/schedule-flow
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	seriesID, err := strconv.ParseInt(chi.URLParam(r, "seriesID"), 10, 64)
	if err != nil || seriesID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid series", "Series id must be a positive integer")
		return
	}

	f, link, err := h.deps.Flows.Start(r.Context(), models.EventSeriesID(seriesID))
	if err != nil {
		h.logger.Error("failed to create flow", "event_series_id", seriesID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error", "Could not create a scheduling link")
		return
	}
	service, _ := auth.ServiceFromContext(r.Context())
	h.logger.Info("schedule flow created", "event_series_id", seriesID, "service", service)
	writeJSON(w, http.StatusCreated, FlowCreated{FlowID: strconv.FormatUint(f.ID, 10), Link: link})
}

// TriggerSync handles POST /api/sync/{source}
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Unknown source", err.Error())
		return
	}
	if h.deps.Jobs == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Sync unavailable", "The scheduler is not running")
		return
	}

	err = h.deps.Jobs.Trigger(h.deps.JobContext, string(source)+"-sync")
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeMessage(w, http.StatusNotFound, "Sync unavailable", fmt.Sprintf("%s is not configured", source))
	case errors.Is(err, scheduler.ErrJobRunning):
		writeMessage(w, http.StatusConflict, "Sync running", fmt.Sprintf("A %s sync is already in progress", source))
	default:
		h.logger.Error("failed to trigger sync", "source", source, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}

// SyncStatus handles GET /api/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses := []ingestion.ConnectorStatus{}
	if h.deps.Statuses != nil {
		statuses = append(statuses, h.deps.Statuses()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": statuses})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
