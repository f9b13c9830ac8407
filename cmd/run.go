package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/triage"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process unread emails once and print the run log",
		Long: `Run one triage pass without the terminal UI. The run log is written to
stdout and diagnostics to stderr. The command exits non-zero when the run is
aborted, for example because the mailbox could not be reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, appOptions{telemetry: true})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Close(shutdownCtx)
			}()

			summary, err := a.orchestrator.Run(ctx, triage.NewWriterSink(cmd.OutOrStdout()))
			if err != nil {
				return fmt.Errorf("run %s aborted: %w", summary.RunID, err)
			}
			return nil
		},
	}
}
