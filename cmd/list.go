package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the unread emails the next run would analyze",
		Long: `List the unread messages matching mailbox.query without classifying them
or changing anything in the mailbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			records, err := a.orchestrator.Preview(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No new messages found matching the query.")
				return nil
			}
			fmt.Fprintln(out, candidatesTable(records))
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of messages to list (default: mailbox.max_messages)")
	return cmd
}
