package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	dbfx "startup-positioning-map/db/fx"
	"startup-positioning-map/internal/history"
	runreport "startup-positioning-map/internal/report"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := runreport.ParseFormat(format)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			if limit <= 0 {
				return fmt.Errorf("%w: --limit must be positive", errUsage)
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			var store *history.Store
			return withApp(cmd.Context(), cfg, streamsFor(cmd),
				func(ctx context.Context) error {
					runs, err := store.ListRuns(ctx, limit)
					if err != nil {
						return err
					}
					return runreport.NewWriter(f, cmd.OutOrStdout()).WriteRuns(runs)
				},
				dbfx.Module,
				fx.Provide(history.NewStore),
				fx.Populate(&store),
			)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&format, "format", string(runreport.FormatText), "Output format: text or markdown")
	return cmd
}
