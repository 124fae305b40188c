package ui

import "github.com/charmbracelet/lipgloss"

// Blue-grey primary palette.
var (
	Primary     = lipgloss.Color("#607D8B")
	PrimaryDark = lipgloss.Color("#455A64")
	PrimaryLite = lipgloss.Color("#CFD8DC")
	Accent      = lipgloss.Color("#FFC107")
	Muted       = lipgloss.Color("#90A4AE")
	Destructive = lipgloss.Color("#E53935")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(PrimaryDark).Padding(0, 1)
	tabStyle    = lipgloss.NewStyle().Foreground(Muted).Padding(0, 1)
	tabActive   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(Primary).Bold(true).Padding(0, 1)

	columnStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(PrimaryLite).Padding(0, 1)
	columnFocusStyle = columnStyle.BorderForeground(Primary)
	columnTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary)

	cardStyle      = lipgloss.NewStyle()
	cardFocusStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	cardMoveStyle  = lipgloss.NewStyle().Bold(true).Reverse(true)

	mutedStyle     = lipgloss.NewStyle().Foreground(Muted)
	highlightStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	selectedStyle  = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	modalStyle     = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(Primary).Padding(1, 2)
	helpStyle      = lipgloss.NewStyle().Foreground(Muted)
)
