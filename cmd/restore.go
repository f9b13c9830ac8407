package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/logging"
	"github.com/teemow/rejectfewer/internal/store"
)

const pickLimit = 50

func newRestoreCmd() *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:   "restore [message-id]...",
		Short: "Move trashed messages back to the inbox",
		Long: `Move messages out of Trash and mark them restored in the run history.
With --pick, choose from the messages past runs have trashed. Only the Gmail
provider supports restoring.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !pick && len(args) == 0 {
				return errors.New("pass at least one message id, or --pick to choose from the run history")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			ids := args
			if pick {
				ids, err = pickTrashed(ctx, a)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing selected.")
					return nil
				}
			}

			failed := 0
			for _, id := range ids {
				if err := restoreMessage(ctx, a, cmd.OutOrStdout(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed to restore %s: %v\n", id, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d messages could not be restored", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "Choose messages to restore from the run history")
	return cmd
}

func pickTrashed(ctx context.Context, a *app) ([]string, error) {
	if a.history == nil {
		return nil, errors.New("run history is disabled; pass message ids instead")
	}
	trashed, err := a.history.Trashed(ctx, pickLimit)
	if err != nil {
		return nil, err
	}
	if len(trashed) == 0 {
		return nil, nil
	}

	options := make([]huh.Option[string], 0, len(trashed))
	for _, o := range trashed {
		label := fmt.Sprintf("%s  %s", truncate(o.Sender, 32), truncate(o.Subject, 60))
		options = append(options, huh.NewOption(label, o.MessageID))
	}

	var selected []string
	err = huh.NewMultiSelect[string]().
		Title("Messages moved to Trash").
		Description("space to select, enter to restore").
		Options(options...).
		Value(&selected).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return nil, nil
	}
	return selected, err
}

// restoreMessage untrashes id and records it in the history. A message the
// history does not know is still restored.
func restoreMessage(ctx context.Context, a *app, out io.Writer, id string) error {
	if err := a.handle.Restore(ctx, id); err != nil {
		return err
	}
	if a.history != nil {
		err := a.history.MarkRestored(ctx, id, time.Now())
		switch {
		case errors.Is(err, store.ErrNotFound):
			fmt.Fprintf(out, "Email %s moved out of Trash (no matching history entry).\n", id)
			return nil
		case err != nil:
			a.logger.Warn("marking message restored failed", logging.MessageID(id), logging.Err(err))
		}
	}
	fmt.Fprintf(out, "Email %s moved out of Trash.\n", id)
	return nil
}
