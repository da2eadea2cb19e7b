package scheduler

import (
	"context"
	"time"

	"github.com/dthul/discord-bot/internal/freespots"
	"github.com/dthul/discord-bot/internal/ingestion"
)

// Job names.
const (
	JobMeetupSync   = "meetup-sync"
	JobSwissRPGSync = "swissrpg-sync"
	JobFreeSpots    = "free-spots"
	JobTokenRefresh = "token-refresh"
)

// PassJob runs a reconciliation pass and, when it succeeds, hands its
// collection to the free-spots task.
func PassJob(name string, offset time.Duration, pass *ingestion.Pass, collections *freespots.Collections) Job {
	return Job{
		Name:   name,
		Offset: offset,
		Run: func(ctx context.Context) error {
			result, err := pass.Run(ctx)
			if err != nil {
				return err
			}
			collections.Set(pass.Source(), result.Collection)
			return nil
		},
	}
}

// FreeSpotsJob publishes the combined free spots.
func FreeSpotsJob(offset time.Duration, task *freespots.Task) Job {
	return Job{Name: JobFreeSpots, Offset: offset, Run: task.Run}
}

// TokenRefreshJob renews a credential ahead of its expiry so sync passes
// rarely hit an expired token.
func TokenRefreshJob(offset time.Duration, refresh func(ctx context.Context) error) Job {
	return Job{Name: JobTokenRefresh, Offset: offset, Run: refresh}
}
