package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dthul/discord-bot/internal/credentials"
	"github.com/dthul/discord-bot/internal/logging"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/rewrite"
	"github.com/dthul/discord-bot/internal/sources/meetup"
)

// UserClients returns a client provider acting as the given Meetup member.
type UserClients func(memberID uint64) credentials.ClientProvider[*meetup.Client]

const backgroundReconcileTimeout = time.Minute

// MeetupContinuer schedules the next session by cloning the latest Meetup
// event. The clone is reconciled in the background so the series shows it
// before the next Meetup pass.
type MeetupContinuer struct {
	organizer  credentials.ClientProvider[*meetup.Client]
	users      UserClients
	reconciler Reconciler
	logger     *slog.Logger
	background asyncWork
}

// NewMeetupContinuer creates a continuer cloning events as the organizer.
// users may be nil, in which case RSVP transfers always report failure.
func NewMeetupContinuer(organizer credentials.ClientProvider[*meetup.Client], users UserClients, reconciler Reconciler, logger *slog.Logger) *MeetupContinuer {
	return &MeetupContinuer{
		organizer:  organizer,
		users:      users,
		reconciler: reconciler,
		logger:     logging.Component(logger, "flow.meetup"),
	}
}

// Continue clones latest with the next session title and start time.
func (m *MeetupContinuer) Continue(ctx context.Context, latest *models.Event, req Request) (*Result, error) {
	binding := latest.MeetupEvent
	if binding == nil {
		return &Result{Path: PathMeetup}, fmt.Errorf("event %d has no meetup binding", latest.ID)
	}
	urlname, oldID := binding.URLName, binding.MeetupID

	hook := func(next *meetup.NewEvent) error {
		next.Name = rewrite.NextTitle(latest.Title, rewrite.MeetupMaxTitleLength)
		next.Description = rewrite.ContinuationDescription(latest.Description, oldID, req.OpenEvent)
		next.SetStartTime(req.Start)
		if req.Duration > 0 {
			next.Duration = req.Duration.Milliseconds()
		}
		return nil
	}
	created, err := credentials.CallWithRefresh(ctx, m.organizer, func(ctx context.Context, c *meetup.Client) (*meetup.Event, error) {
		return c.CloneEvent(ctx, urlname, oldID, hook)
	})
	if err != nil {
		return &Result{Path: PathMeetup}, fmt.Errorf("clone meetup event %s: %w", oldID, err)
	}
	logger := m.logger.With("urlname", urlname, "meetup_id", created.ID)

	result := &Result{
		Source: models.SourceMeetup,
		Path:   PathMeetup,
		Title:  created.Name,
		URL:    created.Link,
	}

	if req.TransferRSVPs {
		all := m.transferRSVPs(ctx, urlname, oldID, created.ID, logger)
		result.TransferredAllRSVPs = &all
	}

	if !req.OpenEvent {
		_, err := credentials.CallWithRefresh(ctx, m.organizer, func(ctx context.Context, c *meetup.Client) (struct{}, error) {
			return struct{}{}, c.CloseRSVPs(ctx, urlname, created.ID)
		})
		if err != nil {
			logger.Warn("could not close rsvps", "error", err)
		} else {
			result.ClosedRSVPs = true
		}
	}

	clone := *created
	m.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundReconcileTimeout)
		defer cancel()
		if _, err := m.reconciler.Reconcile(ctx, meetup.Normalize(urlname, clone, nil)); err != nil {
			logger.Error("failed to reconcile continued event", "error", err)
		}
	})

	return result, nil
}

// transferRSVPs answers yes to the new event for every member who said yes
// to the old one, acting as each member. It reports whether all succeeded.
func (m *MeetupContinuer) transferRSVPs(ctx context.Context, urlname, oldID, newID string, logger *slog.Logger) bool {
	rsvps, err := credentials.CallWithRefresh(ctx, m.organizer, func(ctx context.Context, c *meetup.Client) ([]meetup.RSVP, error) {
		return c.RSVPs(ctx, urlname, oldID)
	})
	if err != nil {
		logger.Warn("could not load rsvps to transfer", "error", err)
		return false
	}

	failures := 0
	for _, rsvp := range rsvps {
		if rsvp.Response != meetup.ResponseYes {
			continue
		}
		if m.users == nil {
			failures++
			continue
		}
		_, err := credentials.CallWithRefresh(ctx, m.users(rsvp.Member.ID), func(ctx context.Context, c *meetup.Client) (*meetup.RSVP, error) {
			return c.RSVP(ctx, urlname, newID, true)
		})
		if err != nil {
			logger.Warn("could not transfer rsvp", "member_id", rsvp.Member.ID, "error", err)
			failures++
		}
	}
	return failures == 0
}
