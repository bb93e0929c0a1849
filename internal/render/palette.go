// Package render turns dialogue snapshots into terminal output and markdown.
package render

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// Catppuccin Mocha, matching the TUI.
var (
	colorMauve    = lipgloss.Color("#cba6f7")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorRed      = lipgloss.Color("#f38ba8")
	colorPeach    = lipgloss.Color("#fab387")
	colorBlue     = lipgloss.Color("#89b4fa")
	colorOverlay  = lipgloss.Color("#6c7086")
	colorSubtext  = lipgloss.Color("#a6adc8")
	colorText     = lipgloss.Color("#cdd6f4")
	colorSurface0 = "#313244"
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorMauve)
	styleName    = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	styleMuted   = lipgloss.NewStyle().Foreground(colorSubtext)
	styleSystem  = lipgloss.NewStyle().Italic(true).Foreground(colorPeach)
	styleInsert  = lipgloss.NewStyle().Foreground(colorGreen)
	styleDelete  = lipgloss.NewStyle().Foreground(colorRed)
	styleHunk    = lipgloss.NewStyle().Foreground(colorBlue)
	styleNeutral = lipgloss.NewStyle().Foreground(colorOverlay)
)

// StanceColor returns the display color of a stance.
func StanceColor(s dialogue.Stance) color.Color {
	switch s {
	case dialogue.StanceAgree:
		return colorGreen
	case dialogue.StanceDisagree:
		return colorRed
	case dialogue.StanceRisk:
		return colorPeach
	case dialogue.StanceIdea:
		return colorBlue
	}
	return colorOverlay
}

// StanceBadge renders "[stance]" in the stance color.
func StanceBadge(s dialogue.Stance) string {
	if s == "" {
		return ""
	}
	return lipgloss.NewStyle().Bold(true).Foreground(StanceColor(s)).Render("[" + string(s) + "]")
}

// Title renders a heading line.
func Title(text string) string {
	return styleTitle.Render(text)
}

// Muted renders secondary text.
func Muted(text string) string {
	return styleMuted.Render(text)
}
