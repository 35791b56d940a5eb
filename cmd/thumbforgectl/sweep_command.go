package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"thumbforge-backend/internal/app"
	"thumbforge-backend/internal/config"
	"thumbforge-backend/internal/jobs"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over orphaned and abandoned jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store app.Store) error {
				rdb, err := app.OpenRedis(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if rdb != nil {
					defer rdb.Close()
				}

				logger := ctx.logger()
				// No manager runs in this process, so nothing is reported active.
				sweeper, err := app.NewSweeper(cfg, store, rdb, nil, logger)
				if err != nil {
					return err
				}

				repaired, err := sweeper.SweepOnce(cmd.Context())
				if errors.Is(err, jobs.ErrSweepInProgress) {
					fmt.Fprintln(cmd.OutOrStdout(), "Another sweep holds the lock; nothing done")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d stale job(s)\n", repaired)
				return err
			})
		},
	}
}
