package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/teemow/rejectfewer/internal/mailbox"
	"github.com/teemow/rejectfewer/internal/store"
)

const maxCellRunes = 48

var headerCellStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func runsTable(runs []store.Run) string {
	t := newTable("RUN", "STARTED", "DURATION", "CONSIDERED", "TRASHED", "SKIPPED", "FAILED", "NOTE")
	for _, r := range runs {
		note := r.Error
		if r.DryRun {
			note = joinNote("dry run", note)
		}
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second).String(),
			strconv.Itoa(r.Considered),
			strconv.Itoa(r.Trashed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			truncate(note, maxCellRunes),
		)
	}
	return t.String()
}

func outcomesTable(outcomes []store.Outcome) string {
	t := newTable("MESSAGE", "OUTCOME", "TOOL", "SENDER", "SUBJECT", "RESTORED")
	for _, o := range outcomes {
		restored := ""
		if o.RestoredAt != nil {
			restored = o.RestoredAt.Local().Format(time.DateTime)
		}
		t.Row(
			o.MessageID,
			o.Outcome,
			o.ToolStatus,
			truncate(o.Sender, maxCellRunes),
			truncate(o.Subject, maxCellRunes),
			restored,
		)
	}
	return t.String()
}

func candidatesTable(records []mailbox.Record) string {
	t := newTable("MESSAGE", "DATE", "SENDER", "SUBJECT")
	for _, r := range records {
		subject := r.Subject
		if r.SnippetFallback {
			subject += " [snippet]"
		}
		t.Row(r.ID, r.Date, truncate(r.Sender, maxCellRunes), truncate(subject, maxCellRunes))
	}
	return t.String()
}

func joinNote(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return fmt.Sprintf("%s; %s", a, b)
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
