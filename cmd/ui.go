package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/ui"
)

func newUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the terminal UI",
		Long: `Open the terminal UI. Press enter to process unread emails; the run log
streams into the window as messages are analyzed. Diagnostics go to the log
file configured as log.file so they do not disturb the screen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cmd, appOptions{logFile: true})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(shutdownCtx)
			}()

			opts := a.orchestrator.Options()
			model := ui.New(ctx, a.orchestrator, ui.Options{Query: opts.Query, DryRun: opts.DryRun})

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("running terminal UI: %w", err)
			}
			return nil
		},
	}
}
