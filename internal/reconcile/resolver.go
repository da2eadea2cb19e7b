package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dthul/discord-bot/internal/models"
)

// resolveSeries picks the series an incoming event belongs to. An existing
// binding wins; an indicated series that disagrees with it is a conflict.
// Without a binding the legacy reference is used, then a series already
// linked to the event's SwissRPG series, and finally a new series.
func resolveSeries(ctx context.Context, tx Tx, existing *Binding, ev models.SourceEvent) (models.EventSeriesID, error) {
	indicated, err := indicatedSeries(ctx, tx, ev)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		if indicated != nil && *indicated != existing.SeriesID {
			return 0, fmt.Errorf("%w: %s indicates series %d but is bound to series %d",
				ErrSeriesConflict, ev.Ref(), *indicated, existing.SeriesID)
		}
		return existing.SeriesID, nil
	}
	if indicated != nil {
		return *indicated, nil
	}

	seriesType := ev.SeriesType
	if seriesType == "" {
		seriesType = models.SeriesTypeAdventure
	}
	id, err := tx.CreateSeries(ctx, seriesType)
	if err != nil {
		return 0, fmt.Errorf("create series: %w", err)
	}
	return id, nil
}

// indicatedSeries returns the series the payload itself points at, if any.
func indicatedSeries(ctx context.Context, tx Tx, ev models.SourceEvent) (*models.EventSeriesID, error) {
	var legacy *models.EventSeriesID
	if ev.LegacyRef != nil {
		id, ok, err := tx.SeriesForEvent(ctx, *ev.LegacyRef)
		if err != nil {
			return nil, fmt.Errorf("resolve legacy %s: %w", ev.LegacyRef, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s continues %s", ErrDanglingLegacyRef, ev.Ref(), ev.LegacyRef)
		}
		legacy = &id
	}

	var linked *models.EventSeriesID
	if ev.Source == models.SourceSwissRPG && ev.SeriesExternalID != "" {
		seriesUUID, err := uuid.Parse(ev.SeriesExternalID)
		if err != nil {
			return nil, fmt.Errorf("parse swissrpg series id %q: %w", ev.SeriesExternalID, err)
		}
		id, ok, err := tx.SeriesForSwissRPGSeries(ctx, seriesUUID)
		if err != nil {
			return nil, fmt.Errorf("resolve swissrpg series %s: %w", seriesUUID, err)
		}
		if ok {
			linked = &id
		}
	}

	switch {
	case legacy != nil && linked != nil && *legacy != *linked:
		return nil, fmt.Errorf("%w: %s continues series %d but its swissrpg series is linked to %d",
			ErrSeriesConflict, ev.Ref(), *legacy, *linked)
	case legacy != nil:
		return legacy, nil
	default:
		return linked, nil
	}
}
