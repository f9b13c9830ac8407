package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/triage"
)

func newTrashCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "trash <message-id>...",
		Short: "Move messages to Trash without classifying them",
		Long: `Move the given messages to Trash through the same gate the classification
agent uses. Use 'rejectfewer restore' to undo.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Move %d message(s) to Trash?", len(args))).
					Affirmative("Move").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if errors.Is(err, huh.ErrUserAborted) || (err == nil && !confirmed) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
				if err != nil {
					return err
				}
			}

			if _, err := a.handle.Ensure(ctx); err != nil {
				return fmt.Errorf("%w: %w", triage.ErrNoConnection, err)
			}

			gate := triage.NewGate(a.handle, a.logger)
			failed := 0
			for _, id := range args {
				var res triage.TrashResult
				if a.cfg.DryRun {
					res = triage.TrashResult{Status: triage.StatusSuccess, Message: fmt.Sprintf("Dry run: email %s would be moved to Trash.", id)}
				} else {
					res = gate.Trash(ctx, id)
				}
				errMsg := ""
				if !res.Succeeded() {
					errMsg = res.Message
					failed++
				}
				a.audit.LogToolInvocation(instrumentation.NewToolInvocation("cli_trash").
					WithSession("", id).
					WithDryRun(a.cfg.DryRun).
					Complete(res.Succeeded(), errMsg))
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", res.Status, res.Message)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d messages could not be moved", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
