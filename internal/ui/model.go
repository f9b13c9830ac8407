package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/rejectfewer/internal/triage"
)

// lineBuffer is the number of log lines the run may queue ahead of the UI.
const lineBuffer = 64

// Runner executes one triage run. *triage.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, sink triage.Sink) (triage.RunSummary, error)
}

// Options describe the run shown in the header.
type Options struct {
	Title  string
	Query  string
	DryRun bool
}

// logLineMsg carries one line of the live run log.
type logLineMsg struct {
	run  int
	line string
}

// runDoneMsg reports the end of a run together with any log lines that were
// still queued when it finished.
type runDoneMsg struct {
	run     int
	summary triage.RunSummary
	err     error
	tail    []string
}

type runResult struct {
	summary triage.RunSummary
	err     error
}

// activeRun is the state shared between the model and the run goroutine.
type activeRun struct {
	id     int
	sink   *triage.ChanSink
	done   chan runResult
	cancel context.CancelFunc
}

// Model is the Bubble Tea model of the triage screen: a button that starts a
// run and a scrolling view of the run log.
type Model struct {
	ctx      context.Context
	runner   Runner
	opts     Options
	keys     *KeyMap
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model

	lines   []string
	run     *activeRun
	runs    int
	last    *triage.RunSummary
	lastErr error
	status  string

	quitting      bool
	width, height int
}

// New creates the triage screen. Runs derive their context from ctx.
func New(ctx context.Context, runner Runner, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Email Rejection Processor"
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorBlue)

	vp := viewport.New(76, 16)
	vp.Style = lipgloss.NewStyle()

	m := Model{
		ctx:      ctx,
		runner:   runner,
		opts:     opts,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		viewport: vp,
		width:    80,
		height:   24,
	}
	m.refreshViewport()
	return m
}

// Init sets the terminal title.
func (m Model) Init() tea.Cmd {
	return tea.SetWindowTitle(m.opts.Title)
}

// Running reports whether a run started from this screen is in progress.
func (m Model) Running() bool {
	return m.run != nil
}

// Lines returns the log of the current or most recent run.
func (m Model) Lines() []string {
	return m.lines
}

// LastRun returns the summary of the most recent finished run.
func (m Model) LastRun() (triage.RunSummary, bool) {
	if m.last == nil {
		return triage.RunSummary{}, false
	}
	return *m.last, true
}

// LastError returns the error that aborted the most recent run, if any.
func (m Model) LastError() error {
	return m.lastErr
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case logLineMsg:
		if m.run == nil || msg.run != m.run.id {
			return m, nil
		}
		m.appendLine(msg.line)
		m.refreshViewport()
		return m, waitForActivity(m.run)

	case runDoneMsg:
		if m.run == nil || msg.run != m.run.id {
			return m, nil
		}
		return m.finishRun(msg)

	case spinner.TickMsg:
		if m.run == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.run == nil || m.quitting {
			return m, tea.Quit
		}
		// Quit once the run has wound down so its history is recorded.
		m.quitting = true
		m.run.cancel()
		m.status = "Cancelling run before quitting..."
		return m, nil

	case key.Matches(msg, m.keys.Run):
		if m.run != nil {
			m.status = "A run is already in progress."
			return m, nil
		}
		return m.startRun()

	case key.Matches(msg, m.keys.Clear):
		if m.run == nil {
			m.lines = nil
			m.status = ""
			m.refreshViewport()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) startRun() (tea.Model, tea.Cmd) {
	m.runs++
	ctx, cancel := context.WithCancel(m.ctx)
	run := &activeRun{
		id:     m.runs,
		sink:   triage.NewChanSink(lineBuffer),
		done:   make(chan runResult, 1),
		cancel: cancel,
	}
	m.run = run
	m.lines = nil
	m.status = ""
	m.refreshViewport()

	return m, tea.Batch(
		m.spinner.Tick,
		execute(ctx, m.runner, run),
		waitForActivity(run),
	)
}

func (m Model) finishRun(msg runDoneMsg) (tea.Model, tea.Cmd) {
	for _, line := range msg.tail {
		m.appendLine(line)
	}
	m.run.cancel()
	m.run.sink.Close()
	m.run = nil

	switch {
	case errors.Is(msg.err, triage.ErrRunInProgress):
		m.status = "Another run is already in progress. Try again when it has finished."
	case msg.err != nil:
		summary := msg.summary
		m.last, m.lastErr = &summary, msg.err
		m.status = fmt.Sprintf("Run aborted: %v", msg.err)
	default:
		summary := msg.summary
		m.last, m.lastErr = &summary, nil
		m.status = summaryStatus(summary)
	}
	m.refreshViewport()

	if m.quitting {
		return m, tea.Quit
	}
	return m, nil
}

func summaryStatus(s triage.RunSummary) string {
	status := fmt.Sprintf("Analyzed %d, trashed %d, skipped %d, failed %d in %s",
		s.Completed, s.Trashed, s.Skipped, s.Failed, s.Duration.Round(100*time.Millisecond))
	if s.DryRun {
		status += " (dry run)"
	}
	return status
}

// execute runs the triage pass. It reports through run.done rather than a
// message so the final lines can be drained in order.
func execute(ctx context.Context, runner Runner, run *activeRun) tea.Cmd {
	return func() tea.Msg {
		summary, err := runner.Run(ctx, run.sink)
		run.done <- runResult{summary: summary, err: err}
		return nil
	}
}

// waitForActivity waits for the next log line or the end of the run.
func waitForActivity(run *activeRun) tea.Cmd {
	return func() tea.Msg {
		select {
		case line := <-run.sink.Lines():
			return logLineMsg{run: run.id, line: line}
		case res := <-run.done:
			// Run has returned, so no further lines can be queued.
			var tail []string
			for {
				select {
				case line := <-run.sink.Lines():
					tail = append(tail, line)
				default:
					return runDoneMsg{run: run.id, summary: res.summary, err: res.err, tail: tail}
				}
			}
		}
	}
}

// appendLine splits multi-line log entries so each row is styled on its own.
func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, strings.Split(line, "\n")...)
}

// refreshViewport re-renders the log and scrolls to the bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m Model) renderLog() string {
	if len(m.lines) == 0 {
		if m.run != nil {
			return helpStyle.Render("Waiting for the first log line...")
		}
		return helpStyle.Render("Press enter to scan unread mail for job application rejections.")
	}

	rendered := make([]string, len(m.lines))
	for i, line := range m.lines {
		rendered[i] = styleLine(line).Render(line)
	}
	return strings.Join(rendered, "\n")
}

func styleLine(line string) lipgloss.Style {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "ERROR:"), strings.HasPrefix(trimmed, "[Error]"):
		return errorStyle
	case strings.HasPrefix(trimmed, "[Tool Result]"):
		return trashStyle
	case strings.HasPrefix(trimmed, "---"), strings.HasPrefix(trimmed, ">>>"):
		return sectionStyle
	case strings.HasPrefix(trimmed, "Processing complete."):
		return summaryStyle
	}
	return lipgloss.NewStyle()
}

// View renders the screen.
func (m Model) View() string {
	header := headerStyle.Render(m.opts.Title)
	if m.opts.Query != "" {
		header += helpStyle.Render("  query: " + m.opts.Query)
	}
	if m.opts.DryRun {
		header += trashStyle.Render("  dry run")
	}

	var button string
	if m.run != nil {
		button = busyButtonStyle.Render(m.spinner.View() + " Processing...")
	} else {
		button = buttonStyle.Render("Process Emails")
	}

	status := m.status
	if status == "" && m.last == nil {
		status = "Idle"
	}
	statusLine := helpStyle.Render(status)
	if m.lastErr != nil && m.run == nil {
		statusLine = errorStyle.Render(status)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		lipgloss.JoinHorizontal(lipgloss.Center, button, "  ", statusLine),
		logPanelStyle.Width(max(m.width-2, 20)).Render(m.viewport.View()),
		m.help.ShortHelpView(m.keys.ShortHelp()),
	)
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width

	vpHeight := height - 8 // header, button row, borders and help
	if vpHeight < 4 {
		vpHeight = 4
	}
	m.viewport.Width = max(width-4, 16)
	m.viewport.Height = vpHeight
	m.refreshViewport()
}
