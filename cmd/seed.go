package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/config"
	"github.com/teemow/rejectfewer/internal/mailbox"
)

const mockSubjectFormat = "Update on Your Recent Application (Mock #%d)"

const mockBodyFormat = `Dear Applicant,

Thank you for your interest and for applying. This is mock email #%d.

After careful consideration, we have decided to move forward with other candidates whose qualifications more closely match the requirements of this particular role at this time.

This was a difficult decision due to the high caliber of applicants. We appreciate you taking the time to apply and encourage you to keep an eye on future openings.

We wish you the best in your job search.

Sincerely,
The Mock Hiring Team
`

func newSeedCmd() *cobra.Command {
	var (
		to    string
		count int
		delay time.Duration
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Send mock rejection emails to test a run",
		Long: `Send a number of mock job application rejections from the authorized Gmail
account, by default to the account itself, so a run has something to find.
Requires a token authorized with the gmail.send scope.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cmd, appOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if a.cfg.Mailbox.Provider != config.ProviderGmail {
				return errors.New("seed sends through the Gmail API and needs mailbox.provider gmail")
			}
			client, err := a.gmailClient(ctx)
			if err != nil {
				return err
			}
			if to == "" {
				if to, err = client.Profile(ctx); err != nil {
					return fmt.Errorf("looking up the account address: %w", err)
				}
			}
			if !strings.Contains(to, "@") {
				return fmt.Errorf("invalid recipient %q", to)
			}

			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Send %d mock rejection email(s) to %s?", count, to)).
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

			sent, failed := seedMessages(ctx, client, cmd.OutOrStdout(), to, count, delay)
			if failed > 0 {
				return fmt.Errorf("%d of %d messages failed to send", failed, sent+failed)
			}
			return ctx.Err()
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient (default: the authorized account's own address)")
	cmd.Flags().IntVar(&count, "count", 5, "Number of emails to send")
	cmd.Flags().DurationVar(&delay, "delay", 1500*time.Millisecond, "Pause between messages")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// seedMessages sends count numbered mock rejections to to, pausing delay
// between them. It stops early when ctx is cancelled.
func seedMessages(ctx context.Context, c mailbox.Composer, out io.Writer, to string, count int, delay time.Duration) (sent, failed int) {
	for i := 1; i <= count; i++ {
		if i > 1 && delay > 0 {
			select {
			case <-ctx.Done():
				return sent, failed
			case <-time.After(delay):
			}
		}
		fmt.Fprintf(out, "Sending email %d of %d...\n", i, count)
		id, err := c.Send(ctx, to, fmt.Sprintf(mockSubjectFormat, i), fmt.Sprintf(mockBodyFormat, i))
		if err != nil {
			fmt.Fprintf(out, "  An error occurred sending message: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "  Message sent successfully. ID: %s\n", id)
		sent++
	}
	fmt.Fprintf(out, "\n--- Sending Complete ---\nSuccessfully sent: %d\nFailed to send:   %d\n", sent, failed)
	return sent, failed
}
