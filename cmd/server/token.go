package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dthul/discord-bot/internal/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		service  string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the internal API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				duration = opts.Config.Auth.TokenDuration
			}
			token, err := auth.GenerateToken(service, opts.Config.Auth.JWTSecret, duration)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&service, "service", "chat-bot", "name of the calling service")
	cmd.Flags().DurationVar(&duration, "ttl", 0, "token lifetime (default from config)")

	return cmd
}
