package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past runs, or the per-message outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if a.history == nil {
				return errors.New("run history is disabled (history.enabled)")
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				outcomes, err := a.history.Outcomes(ctx, args[0])
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					return fmt.Errorf("no outcomes recorded for run %s", args[0])
				}
				fmt.Fprintln(out, outcomesTable(outcomes))
				return nil
			}

			runs, err := a.history.Runs(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(out, runsTable(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show")
	return cmd
}
