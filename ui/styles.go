package ui

import "github.com/charmbracelet/lipgloss"

const ellipsis = "…"

var (
	green    = lipgloss.Color("#04B575")
	yellow   = lipgloss.Color("#ECFD65")
	blue     = lipgloss.Color("#00AAFF")
	red      = lipgloss.Color("#FF5F87")
	gray     = lipgloss.Color("#888888")
	darkGray = lipgloss.Color("#666666")

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	subtleStyle   = lipgloss.NewStyle().Foreground(darkGray)
	errorStyle    = lipgloss.NewStyle().Foreground(red)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EE6FF8")).Bold(true)
	playingStyle  = lipgloss.NewStyle().Foreground(green).Bold(true)
	markerStyle   = lipgloss.NewStyle().Foreground(yellow)
	statusBarBase = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}).
			Background(lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#353533"})
)
