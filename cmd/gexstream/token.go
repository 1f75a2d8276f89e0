package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/auth"
)

func tokenCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Exchange credentials for access and streaming tokens",
		Long: `Refresh the access and streaming tokens and report their expiry.
Useful for verifying credentials before starting the serve loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tokens, err := auth.NewManager(cfg.Auth, logger)
			if err != nil {
				return err
			}

			access, err := tokens.AccessToken(ctx, force)
			if err != nil {
				return err
			}
			logger.Info("access token ok",
				zap.Time("expires_at", access.ExpiresAt()),
			)

			streaming, wsURL, err := tokens.StreamerToken(ctx, force)
			if err != nil {
				return err
			}
			logger.Info("streaming token ok",
				zap.Time("expires_at", streaming.ExpiresAt()),
				zap.String("websocket_url", wsURL),
			)

			fmt.Printf("access token valid until   %s\n", access.ExpiresAt().Format(time.RFC3339))
			fmt.Printf("streaming token valid until %s\n", streaming.ExpiresAt().Format(time.RFC3339))
			fmt.Printf("feed url                    %s\n", wsURL)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "refresh even if cached tokens are still valid")

	return cmd
}
