package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dthul/discord-bot/internal/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Example: `  discord-bot migrate
  discord-bot migrate --down 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := opts.Config.Database.URL
			if url == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			opts.Logger.Info("running migrations", "database", database.RedactURL(url))
			if down > 0 {
				return database.RollbackMigrations(url, down, opts.Logger)
			}
			return database.RunMigrations(url, opts.Logger)
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")

	return cmd
}
