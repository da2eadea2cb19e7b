package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dthul/discord-bot/internal/channels"
	"github.com/dthul/discord-bot/internal/config"
	"github.com/dthul/discord-bot/internal/credentials"
	"github.com/dthul/discord-bot/internal/database"
	"github.com/dthul/discord-bot/internal/ingestion"
	"github.com/dthul/discord-bot/internal/metrics"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/reconcile"
	"github.com/dthul/discord-bot/internal/sources"
	"github.com/dthul/discord-bot/internal/sources/meetup"
	"github.com/dthul/discord-bot/internal/sources/swissrpg"
)

// app holds the long-lived components shared by serve and sync.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db  *sql.DB
	rdb *redis.Client

	registry *prometheus.Registry
	sync     *metrics.SyncCollector

	events     *database.EventStore
	reconciler *reconcile.Reconciler
	channels   *channels.Store

	tokens          *credentials.TokenStore
	refresher       *credentials.OAuth2Refresher
	meetupTransport *sources.Transport
	organizer       *credentials.Provider[*meetup.Client]
	swissrpg        *swissrpg.Client

	passes map[models.Source]*ingestion.Pass
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, passes: make(map[models.Source]*ingestion.Pass)}

	logger.Info("connecting to database", "database", database.RedactURL(cfg.Database.URL))
	db, err := database.Connect(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return nil, err
	}
	a.db = db

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.rdb = redis.NewClient(redisOpts)
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	a.registry = metrics.NewRegistry()
	if a.sync, err = metrics.NewSyncCollector(a.registry); err != nil {
		a.Close()
		return nil, fmt.Errorf("register sync metrics: %w", err)
	}

	a.events = database.NewEventStore(db)
	a.reconciler = reconcile.New(a.events, logger)
	a.channels = channels.NewStore(a.rdb)
	a.tokens = credentials.NewTokenStore(a.rdb)

	if cfg.Meetup.Enabled() {
		a.meetupTransport, err = meetup.NewTransport(cfg.Meetup.BaseURL, sources.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("meetup transport: %w", err)
		}
		a.refresher = credentials.NewOAuth2Refresher(cfg.Meetup.ClientID, cfg.Meetup.ClientSecret, cfg.Meetup.TokenURL, a.tokens)
		a.organizer = a.meetupProvider(cfg.Meetup.OrganizerID)

		connector := meetup.NewConnector(a.organizer, cfg.Meetup.Groups, cfg.Sync.RateLimit, logger)
		a.passes[models.SourceMeetup] = ingestion.NewPass(connector, a.reconciler, logger,
			ingestion.WithChannels(a.channels),
			ingestion.WithRecorder(a.sync),
		)
	} else {
		logger.Warn("meetup not configured, skipping meetup sync")
	}

	if cfg.SwissRPG.Enabled() {
		a.swissrpg, err = swissrpg.NewClient(cfg.SwissRPG.BaseURL, cfg.SwissRPG.APIToken, sources.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("swissrpg client: %w", err)
		}
		connector := swissrpg.NewConnector(a.swissrpg, logger)
		a.passes[models.SourceSwissRPG] = ingestion.NewPass(connector, a.reconciler, logger,
			ingestion.WithRecorder(a.sync),
		)
	} else {
		logger.Warn("swissrpg not configured, skipping swissrpg sync")
	}

	return a, nil
}

func (a *app) meetupProvider(principal string) *credentials.Provider[*meetup.Client] {
	return credentials.NewProvider(principal, a.tokens, a.refresher, func(accessToken string) *meetup.Client {
		return meetup.NewClient(a.meetupTransport, accessToken)
	})
}

// userClients returns a provider per Meetup member, keyed like the
// organizer token by the member id.
func (a *app) userClients(memberID uint64) credentials.ClientProvider[*meetup.Client] {
	return a.meetupProvider(strconv.FormatUint(memberID, 10))
}

// refreshOrganizer renews the organizer token.
func (a *app) refreshOrganizer(ctx context.Context) error {
	if a.organizer == nil {
		return nil
	}
	if _, err := a.organizer.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh organizer token: %w", err)
	}
	return nil
}

func (a *app) health(ctx context.Context) error {
	if err := database.HealthCheck(ctx, a.db); err != nil {
		return err
	}
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *app) statuses() []ingestion.ConnectorStatus {
	var out []ingestion.ConnectorStatus
	for _, source := range models.Sources {
		if pass, ok := a.passes[source]; ok {
			out = append(out, pass.Status())
		}
	}
	return out
}

// Close releases the database and redis connections.
func (a *app) Close() error {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
