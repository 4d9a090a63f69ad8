package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/metrics"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/services"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired staged uploads once and exit",
		Long: `Remove expired staged uploads once and exit.

Sessions are not swept here: Redis expires session keys on its own and
in-process sessions belong to the running server, which sweeps them itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.connectRedis(ctx); err != nil {
				return err
			}

			stagingStore, err := a.stagingStore()
			if err != nil {
				return err
			}

			sweeper := services.NewSweeper(stagingStore, nil, a.cfg.StagingTTL(), metrics.New(), a.logger)
			result, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}

			a.logger.Info("Sweep complete", zap.Int("staged_datasets", result.StagedDatasets))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d staged datasets\n", result.StagedDatasets)
			return nil
		},
	}
}
