package main

import (
	"context"
	"fmt"

	"github.com/examprep/backend/internal/config"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Complete expired modules once and exit",
	Long:  "Runs a single deadline sweep. Useful from cron when the API runs without its background sweeper.",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = cfg.SweepBatch
		}

		ctx := context.Background()
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.engine.SweepExpired(ctx, limit)
		if err != nil {
			return fmt.Errorf("sweep expired modules: %w", err)
		}
		fmt.Printf("Settled %d expired session(s).\n", n)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Int("limit", 0, "Maximum expired module runs to handle (default SWEEP_BATCH)")
}
