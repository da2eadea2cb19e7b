// Package reconcile merges normalized source events into the canonical
// series/event model.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
)

var (
	// ErrSeriesConflict is returned when an event points at a series other
	// than the one it is already bound to. The update is not applied.
	ErrSeriesConflict = errors.New("event series conflict")
	// ErrDanglingLegacyRef is returned when an event names a legacy event
	// that is not in the canonical store.
	ErrDanglingLegacyRef = errors.New("legacy event not found")
)

// Outcome describes what a reconciliation did.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// Result reports the canonical rows touched by one reconciliation.
type Result struct {
	Outcome  Outcome
	EventID  models.EventID
	SeriesID models.EventSeriesID
}

// IsSkip reports whether err marks an item that was skipped rather than
// failed. Skipped items leave the store unchanged.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSeriesConflict) || errors.Is(err, ErrDanglingLegacyRef)
}

// Reconciler upserts source events into a Store.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// New creates a reconciler.
func New(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logging.Component(logger, "reconcile")}
}

// Reconcile applies one source event. It is idempotent: applying the same
// payload twice leaves the store as after the first application.
func (r *Reconciler) Reconcile(ctx context.Context, ev models.SourceEvent) (Result, error) {
	var result Result
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		res, err := r.apply(ctx, tx, ev)
		result = res
		return err
	})
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, err
	}

	r.logger.Debug("event reconciled",
		"source", ev.Source,
		"external_id", ev.ExternalID,
		"event_series_id", result.SeriesID,
		"outcome", result.Outcome.String(),
	)
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, tx Tx, ev models.SourceEvent) (Result, error) {
	ref := ev.Ref()
	existing, err := tx.LockBinding(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("lock binding %s: %w", ref, err)
	}

	seriesID, err := resolveSeries(ctx, tx, existing, ev)
	if err != nil {
		return Result{}, err
	}

	if ev.Source == models.SourceSwissRPG && ev.SeriesExternalID != "" {
		if err := recordSwissRPGLink(ctx, tx, seriesID, ev.SeriesExternalID); err != nil {
			return Result{}, err
		}
	}

	fields := EventFields{
		SeriesID:    seriesID,
		StartTime:   ev.StartTime,
		Title:       ev.Title,
		Description: ev.Description,
		IsOnline:    ev.IsOnline,
	}

	result := Result{SeriesID: seriesID}
	if existing != nil {
		if err := tx.UpdateEvent(ctx, existing.EventID, fields); err != nil {
			return Result{}, fmt.Errorf("update event %d: %w", existing.EventID, err)
		}
		result.EventID = existing.EventID
		result.Outcome = OutcomeUpdated
	} else {
		id, err := tx.InsertEvent(ctx, fields)
		if err != nil {
			return Result{}, fmt.Errorf("insert event: %w", err)
		}
		if err := tx.InsertBinding(ctx, id, ev); err != nil {
			return Result{}, fmt.Errorf("insert %s binding: %w", ev.Source, err)
		}
		result.EventID = id
		result.Outcome = OutcomeCreated
	}

	for _, host := range ev.Hosts {
		member, ok, err := r.member(ctx, tx, ev, host)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		if err := tx.AddHost(ctx, result.EventID, member); err != nil {
			return Result{}, fmt.Errorf("add host: %w", err)
		}
	}

	attendees := make([]models.MemberID, 0, len(ev.Attendees))
	seen := make(map[models.MemberID]struct{}, len(ev.Attendees))
	for _, attendee := range ev.Attendees {
		member, ok, err := r.member(ctx, tx, ev, attendee)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[member]; dup {
			continue
		}
		seen[member] = struct{}{}
		attendees = append(attendees, member)
	}
	if err := tx.ReplaceParticipants(ctx, result.EventID, attendees); err != nil {
		return Result{}, fmt.Errorf("replace participants: %w", err)
	}

	return result, nil
}

// member resolves a reported person. Invalid identifiers are logged and
// reported as ok=false so the caller skips just that record.
func (r *Reconciler) member(ctx context.Context, tx Tx, ev models.SourceEvent, p models.Person) (models.MemberID, bool, error) {
	id, err := p.NumericID()
	if err != nil {
		r.logger.Warn("skipping person with invalid id",
			"source", ev.Source,
			"external_id", ev.ExternalID,
			"error", err,
		)
		return 0, false, nil
	}
	member, err := tx.GetOrCreateMember(ctx, p.Kind, id)
	if err != nil {
		return 0, false, fmt.Errorf("get or create member: %w", err)
	}
	return member, true, nil
}

func recordSwissRPGLink(ctx context.Context, tx Tx, seriesID models.EventSeriesID, raw string) error {
	want, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse swissrpg series id %q: %w", raw, err)
	}
	current, err := tx.LockSwissRPGLink(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("lock series %d: %w", seriesID, err)
	}
	if current == nil {
		if err := tx.SetSwissRPGLink(ctx, seriesID, want); err != nil {
			return fmt.Errorf("link series %d: %w", seriesID, err)
		}
		return nil
	}
	if *current != want {
		return fmt.Errorf("%w: series %d is linked to swissrpg series %s, event reports %s",
			ErrSeriesConflict, seriesID, *current, want)
	}
	return nil
}
