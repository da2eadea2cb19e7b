package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dthul/discord-bot/internal/channels"
	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/reconcile"
)

// Reconciler folds one source event into the canonical model.
type Reconciler interface {
	Reconcile(ctx context.Context, ev models.SourceEvent) (reconcile.Result, error)
}

// ChannelAssociator ties a chat channel to a series.
type ChannelAssociator interface {
	TryAssociate(ctx context.Context, channelID uint64, seriesID models.EventSeriesID) error
}

// Recorder receives pass and per-event observations.
type Recorder interface {
	ObserveEvent(source models.Source, outcome string)
	ObservePass(source models.Source, took time.Duration, err error)
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Source   models.Source
	Fetched  int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
	// Collection holds a summary of every fetched event, reconciled or not.
	Collection []models.EventSummary
}

// Pass reconciles the upcoming events of one source. Events are processed
// sequentially; each event gets its own transaction.
type Pass struct {
	connector  Connector
	reconciler Reconciler
	channels   ChannelAssociator
	recorder   Recorder
	logger     *slog.Logger
	status     *statusTracker
	now        func() time.Time
}

// PassOption configures a Pass.
type PassOption func(*Pass)

// WithChannels enables channel association for events that name a channel.
func WithChannels(c ChannelAssociator) PassOption {
	return func(p *Pass) { p.channels = c }
}

// WithRecorder reports observations to r.
func WithRecorder(r Recorder) PassOption {
	return func(p *Pass) { p.recorder = r }
}

// NewPass creates a pass over connector.
func NewPass(connector Connector, reconciler Reconciler, logger *slog.Logger, options ...PassOption) *Pass {
	p := &Pass{
		connector:  connector,
		reconciler: reconciler,
		logger:     logging.Component(logger, "ingestion").With("source", connector.Source()),
		status:     newStatusTracker(connector.Source()),
		now:        time.Now,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Source returns the source this pass reads.
func (p *Pass) Source() models.Source { return p.connector.Source() }

// Status returns the outcome of the recent runs.
func (p *Pass) Status() ConnectorStatus { return p.status.get() }

// Run performs one pass. Per-event failures are logged and counted; only a
// failed fetch or a cancelled context fails the pass. On cancellation the
// partial result is returned alongside the error.
func (p *Pass) Run(ctx context.Context) (*PassResult, error) {
	start := p.now()
	result, err := p.run(ctx)
	took := p.now().Sub(start)
	result.Duration = took

	p.status.update(start, took, err)
	if p.recorder != nil {
		p.recorder.ObservePass(p.Source(), took, err)
	}
	if err != nil {
		return result, err
	}

	p.logger.Info("reconciliation pass completed",
		"fetched", result.Fetched,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", took,
	)
	return result, nil
}

func (p *Pass) run(ctx context.Context) (*PassResult, error) {
	result := &PassResult{Source: p.Source()}

	events, err := p.connector.FetchUpcoming(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch %s events: %w", p.Source(), err)
	}
	events = dedupe(events)
	result.Fetched = len(events)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%s pass interrupted: %w", p.Source(), err)
		}
		result.Collection = append(result.Collection, ev.Summary())
		p.reconcileOne(ctx, ev, result)
	}
	return result, nil
}

func (p *Pass) reconcileOne(ctx context.Context, ev models.SourceEvent, result *PassResult) {
	res, err := p.reconciler.Reconcile(ctx, ev)
	switch {
	case err == nil:
	case reconcile.IsSkip(err):
		result.Skipped++
		p.observe("skipped")
		p.logger.Warn("skipping event", "external_id", ev.ExternalID, "error", err)
		return
	default:
		result.Failed++
		p.observe("failed")
		p.logger.Error("failed to reconcile event", "external_id", ev.ExternalID, "error", err)
		return
	}

	switch res.Outcome {
	case reconcile.OutcomeCreated:
		result.Created++
	case reconcile.OutcomeUpdated:
		result.Updated++
	}
	p.observe(res.Outcome.String())

	if p.channels != nil && ev.IndicatedChannelID != nil {
		channelID := *ev.IndicatedChannelID
		// Only the event that opens a series may claim its channel.
		if !ev.StartsSeries {
			p.logger.Warn("ignoring channel of event that does not start a series",
				"external_id", ev.ExternalID,
				"event_series_id", res.SeriesID,
				"channel_id", channelID,
			)
			return
		}
		if err := p.channels.TryAssociate(ctx, channelID, res.SeriesID); err != nil {
			level := slog.LevelError
			if errors.Is(err, channels.ErrChannelTaken) || errors.Is(err, channels.ErrSeriesHasChannel) {
				level = slog.LevelWarn
			}
			p.logger.Log(ctx, level, "failed to associate channel",
				"external_id", ev.ExternalID,
				"event_series_id", res.SeriesID,
				"channel_id", channelID,
				"error", err,
			)
		}
	}
}

func (p *Pass) observe(outcome string) {
	if p.recorder != nil {
		p.recorder.ObserveEvent(p.Source(), outcome)
	}
}

// dedupe drops repeated events, keeping the first occurrence.
func dedupe(events []models.SourceEvent) []models.SourceEvent {
	seen := make(map[models.EventRef]struct{}, len(events))
	out := events[:0:0]
	for _, ev := range events {
		ref := ev.Ref()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ev)
	}
	return out
}
