package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dthul/discord-bot/internal/config"
	"github.com/dthul/discord-bot/internal/logging"
)

// rootOptions is shared by all subcommands. Config and Logger are filled
// in before any subcommand runs.
type rootOptions struct {
	Config config.Config
	Logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "discord-bot",
		Short: "Event sync and session scheduling for the SwissRPG community",
		Long: `Keeps the canonical event database in sync with Meetup and SwissRPG and
serves the schedule-session links handed out by the chat bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}
