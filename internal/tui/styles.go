package tui

import "charm.land/lipgloss/v2"

// Catppuccin Mocha.
var (
	colorMauve    = lipgloss.Color("#cba6f7")
	colorPeach    = lipgloss.Color("#fab387")
	colorYellow   = lipgloss.Color("#f9e2af")
	colorRed      = lipgloss.Color("#f38ba8")
	colorText     = lipgloss.Color("#cdd6f4")
	colorSubtext  = lipgloss.Color("#a6adc8")
	colorOverlay  = lipgloss.Color("#6c7086")
	colorSurface0 = lipgloss.Color("#313244")
	colorBase     = lipgloss.Color("#1e1e2e")
)

var (
	styleHeaderTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	styleHeaderSeparator = lipgloss.NewStyle().Foreground(colorOverlay)
	styleHeaderInfo      = lipgloss.NewStyle().Foreground(colorSubtext)
	styleStatusBar       = lipgloss.NewStyle().Background(colorSurface0).Padding(0, 1)
	styleRoundDivider    = lipgloss.NewStyle().Foreground(colorOverlay)
	styleSpeaker         = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	styleSpecialty       = lipgloss.NewStyle().Foreground(colorSubtext)
	styleThinking        = lipgloss.NewStyle().Italic(true).Foreground(colorOverlay)
	styleSystemMessage   = lipgloss.NewStyle().Italic(true).Foreground(colorPeach)
	styleReaction        = lipgloss.NewStyle().Foreground(colorSubtext)
	styleHintKey         = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	styleHintDesc        = lipgloss.NewStyle().Foreground(colorOverlay)
	styleStatePaused     = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleStateComplete   = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
)
