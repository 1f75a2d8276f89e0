package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/auth"
	"github.com/dgnsrekt/gexstream/internal/fetch"
)

func fetchCmd() *cobra.Command {
	var (
		expiration   string
		above        int
		below        int
		prefix       string
		increment    float64
		spotOverride float64
	)

	cmd := &cobra.Command{
		Use:   "fetch UNDERLYING",
		Short: "Run one gamma exposure fetch and print the snapshot as JSON",
		Long: `Fetch live option data for one underlying and print the aggregated
gamma exposure snapshot to stdout.

Examples:
  # Fetch SPX for the December 2025 monthly
  gexstream fetch SPX --expiration 251219

  # Custom underlying with explicit chain parameters
  gexstream fetch XSP --expiration 251219 --prefix XSP --increment 1

  # Skip live spot discovery
  gexstream fetch SPX --expiration 251219 --spot 6000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tokens, err := auth.NewManager(cfg.Auth, logger)
			if err != nil {
				return err
			}

			fetcher := fetch.New(tokens, cfg.Feed, logger)

			snap, err := fetcher.Fetch(ctx, fetch.Params{
				Underlying:   args[0],
				Expiration:   expiration,
				StrikesAbove: above,
				StrikesBelow: below,
				Prefix:       prefix,
				Increment:    increment,
				SpotOverride: spotOverride,
			})
			if err != nil {
				return err
			}

			if !snap.Complete {
				logger.Warn("snapshot is incomplete",
					zap.String("underlying", snap.Underlying),
				)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return fmt.Errorf("encoding snapshot: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&expiration, "expiration", "e", "", "expiration date YYMMDD (required)")
	cmd.Flags().IntVar(&above, "above", 0, "strikes above center (default from config)")
	cmd.Flags().IntVar(&below, "below", 0, "strikes below center (default from config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "option symbol prefix for custom underlyings")
	cmd.Flags().Float64Var(&increment, "increment", 0, "strike increment for custom underlyings")
	cmd.Flags().Float64Var(&spotOverride, "spot", 0, "center price override, skips live discovery")
	_ = cmd.MarkFlagRequired("expiration")

	return cmd
}
