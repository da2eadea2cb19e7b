package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dthul/discord-bot/internal/models"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "sync <meetup|swissrpg>",
		Short:     "Run one reconciliation pass and exit",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(models.SourceMeetup), string(models.SourceSwissRPG)},
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := models.ParseSource(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, opts.Config.Sync.Timeout)
			defer cancel()

			a, err := newApp(ctx, opts.Config, opts.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			pass, ok := a.passes[source]
			if !ok {
				return fmt.Errorf("%s is not configured", source)
			}

			result, err := pass.Run(ctx)
			if result != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched=%d created=%d updated=%d skipped=%d failed=%d took=%s\n",
					source, result.Fetched, result.Created, result.Updated, result.Skipped, result.Failed, result.Duration)
			}
			return err
		},
	}
}
