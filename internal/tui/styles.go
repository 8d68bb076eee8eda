package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#6366F1")
	muted  = lipgloss.Color("#71717A")
	danger = lipgloss.Color("#EF4444")
	good   = lipgloss.Color("#10B981")
	warn   = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	errorStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	demoStyle  = lipgloss.NewStyle().Foreground(warn).Italic(true)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(muted).
			Padding(0, 1)

	userBubble = lipgloss.NewStyle().
			Background(lipgloss.Color("#27272A")).
			Foreground(lipgloss.Color("#F4F4F5")).
			Padding(0, 1)

	systemText = lipgloss.NewStyle().Foreground(lipgloss.Color("#D4D4D8"))

	citationStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)

	citationActive = citationStyle.BorderForeground(accent).Foreground(accent)

	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(muted)
	tabActiveStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(accent).Underline(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2)

	selectedStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)

	statusDot = map[string]lipgloss.Style{
		"synced":  lipgloss.NewStyle().Foreground(good),
		"syncing": lipgloss.NewStyle().Foreground(warn),
		"error":   lipgloss.NewStyle().Foreground(danger),
	}
)
