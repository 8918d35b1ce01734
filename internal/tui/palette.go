package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorInk    = lipgloss.Color("#E5E9F0")
	ColorDim    = lipgloss.Color("#7A8291")
	ColorAccent = lipgloss.Color("#88C0D0")
	ColorOK     = lipgloss.Color("#A3BE8C")
	ColorWarn   = lipgloss.Color("#EBCB8B")
	ColorError  = lipgloss.Color("#BF616A")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	labelStyle   = lipgloss.NewStyle().Foreground(ColorInk)
	dimStyle     = lipgloss.NewStyle().Foreground(ColorDim)
	okStyle      = lipgloss.NewStyle().Foreground(ColorOK)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorWarn)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorDim).Padding(0, 1)
	activeBorder = panelStyle.BorderForeground(ColorAccent)
)
