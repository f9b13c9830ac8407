package ui

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWhite).
	Background(colorBlue).
	Padding(0, 1)

// buttonStyle renders the run button while it can be pressed.
var buttonStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWhite).
	Background(colorGreen).
	Padding(0, 2)

// busyButtonStyle renders the run button while a run is in progress.
var busyButtonStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Background(colorSubtle).
	Padding(0, 2)

var logPanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorBorder)

var helpStyle = lipgloss.NewStyle().
	Foreground(colorGray).
	Italic(true)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	trashStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	summaryStyle = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
)
