package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoziy/crmsync/internal/models"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync and cleanup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, rootOpts, "crmsync_history")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			runs, err := a.runs.Recent(ctx, a.cfg.CRM.Entity, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list runs", err)
			}
			return printHistory(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func printHistory(w io.Writer, runs []models.SyncRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tFETCHED\tUPSERTED\tFAILED\tDELETED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Format(time.RFC3339), r.Kind, r.Status,
			r.RowsFetched, r.RowsUpserted, r.RowsFailed, r.RowsDeleted,
			r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}
