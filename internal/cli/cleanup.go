package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoziy/crmsync/internal/syncer"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete master rows for objects removed at the source",
		Long: `Reconcile deletions with the configured CLEANUP_STRATEGY:

  anti_join  list every live object id and delete master rows not in the list
  archived   list archived object ids and delete exactly those rows

anti_join refuses to delete anything when the source reports no live objects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, rootOpts, "crmsync_cleanup")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			sum, err := a.runner.Cleanup(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "cleanup failed", err)
			}
			printCleanupSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func printCleanupSummary(w io.Writer, sum *syncer.CleanupSummary) {
	fmt.Fprintf(w, "run %s: %s\n", sum.RunID, sum.Strategy)
	fmt.Fprintf(w, "  source ids: %d\n", sum.Candidates)
	fmt.Fprintf(w, "  deleted:    %d\n", sum.Deleted)
	if sum.Skipped {
		fmt.Fprintln(w, "  skipped:    source reported no live objects")
	}
	fmt.Fprintf(w, "  duration:   %s\n", sum.Duration.Round(time.Millisecond))
}
