package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dthul/discord-bot/internal/api"
	"github.com/dthul/discord-bot/internal/database"
	"github.com/dthul/discord-bot/internal/flow"
	"github.com/dthul/discord-bot/internal/freespots"
	"github.com/dthul/discord-bot/internal/metrics"
	"github.com/dthul/discord-bot/internal/models"
	"github.com/dthul/discord-bot/internal/scheduler"
	"github.com/dthul/discord-bot/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the recurring sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")

	return cmd
}

func serve(ctx context.Context, opts *rootOptions, skipMigrations bool) error {
	cfg, logger := opts.Config, opts.Logger
	logger.Info("starting discord-bot")

	if !skipMigrations {
		// Non-fatal to allow the app to start even if migrations fail
		if err := database.RunMigrations(cfg.Database.URL, logger); err != nil {
			logger.Warn("failed to run migrations, continuing anyway", "error", err)
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Background work outlives the shutdown signal until the grace period ends.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	collections := freespots.NewCollections()
	freeSpots := freespots.NewTask(collections, freespots.NewRedisPublisher(a.rdb), logger)

	var jobs []scheduler.Job
	if pass, ok := a.passes[models.SourceMeetup]; ok {
		jobs = append(jobs,
			scheduler.TokenRefreshJob(cfg.Sync.TokenRefreshOffset, a.refreshOrganizer),
			scheduler.PassJob(scheduler.JobMeetupSync, cfg.Sync.MeetupOffset, pass, collections),
		)
	}
	if pass, ok := a.passes[models.SourceSwissRPG]; ok {
		jobs = append(jobs, scheduler.PassJob(scheduler.JobSwissRPGSync, cfg.Sync.SwissRPGOffset, pass, collections))
	}
	jobs = append(jobs, scheduler.FreeSpotsJob(cfg.Sync.FreeSpotsOffset, freeSpots))

	sched := scheduler.NewSyncScheduler(jobs, cfg.Sync.Interval, cfg.Sync.Timeout, a.sync, logger)
	sched.Start(workCtx)

	flowOpts := []flow.Option{
		flow.WithRecorder(a.sync),
		flow.WithBaseURL(cfg.Flow.BaseURL),
	}
	if a.swissrpg != nil {
		flowOpts = append(flowOpts, flow.WithSwissRPG(a.swissrpg))
	}
	if a.organizer != nil {
		flowOpts = append(flowOpts, flow.WithMeetup(flow.NewMeetupContinuer(a.organizer, a.userClients, a.reconciler, logger)))
	}
	flows := flow.NewService(flow.NewStore(a.rdb, cfg.Flow.TTL), a.events, logger, flowOpts...)

	httpMetrics, err := metrics.NewHTTPCollector(a.registry)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	srv := server.New(cfg.Server, logger)
	srv.SetHandler(api.NewRouter(api.Deps{
		Flows:          flows,
		Jobs:           sched,
		Statuses:       a.statuses,
		Health:         a.health,
		ShuttingDown:   srv.ShuttingDown,
		Location:       cfg.Flow.TimeZone,
		JWTSecret:      cfg.Auth.JWTSecret,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metrics.Handler(a.registry),
		JobContext:     workCtx,
		Logger:         logger,
	}))

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
		close(serverErr)
	}()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	sched.Stop()
	graceCtx, cancelGrace := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelGrace()
	if err := sched.Wait(graceCtx); err != nil {
		logger.Warn("sync jobs still running at end of grace period", "error", err)
	}
	if err := flows.Wait(graceCtx); err != nil {
		logger.Warn("scheduling work still running at end of grace period", "error", err)
	}
	cancelWork()

	logger.Info("shutdown complete")
	return nil
}
