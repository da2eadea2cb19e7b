package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/models"
)

// Binding is the canonical event a (source, external id) pair points at.
type Binding struct {
	EventID  models.EventID
	SeriesID models.EventSeriesID
}

// EventFields are the canonical columns written on every pass.
type EventFields struct {
	SeriesID    models.EventSeriesID
	StartTime   time.Time
	Title       string
	Description string
	IsOnline    bool
}

// Tx is the set of operations one reconciliation needs inside a single
// transaction. Implementations must hold the row lock taken by LockBinding
// until the transaction ends.
type Tx interface {
	// LockBinding returns the binding for ref, locking it, or nil if the
	// event has not been seen on that source yet.
	LockBinding(ctx context.Context, ref models.EventRef) (*Binding, error)
	// SeriesForEvent returns the series of the event bound to ref.
	SeriesForEvent(ctx context.Context, ref models.EventRef) (models.EventSeriesID, bool, error)
	// SeriesForSwissRPGSeries returns the canonical series linked to a
	// SwissRPG event series.
	SeriesForSwissRPGSeries(ctx context.Context, swissrpgSeriesID uuid.UUID) (models.EventSeriesID, bool, error)
	CreateSeries(ctx context.Context, seriesType string) (models.EventSeriesID, error)
	// LockSwissRPGLink returns the recorded SwissRPG series of a canonical
	// series, locking the series row.
	LockSwissRPGLink(ctx context.Context, seriesID models.EventSeriesID) (*uuid.UUID, error)
	SetSwissRPGLink(ctx context.Context, seriesID models.EventSeriesID, swissrpgSeriesID uuid.UUID) error
	InsertEvent(ctx context.Context, fields EventFields) (models.EventID, error)
	UpdateEvent(ctx context.Context, id models.EventID, fields EventFields) error
	// InsertBinding records the source representation of a new event.
	InsertBinding(ctx context.Context, id models.EventID, ev models.SourceEvent) error
	GetOrCreateMember(ctx context.Context, kind models.PersonKind, externalID uint64) (models.MemberID, error)
	AddHost(ctx context.Context, id models.EventID, member models.MemberID) error
	// ReplaceParticipants makes the participant set exactly members.
	ReplaceParticipants(ctx context.Context, id models.EventID, members []models.MemberID) error
}

// Store runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
