package tui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/render"
)

// renderTranscript lays out the snapshot's messages for a viewport of the given width.
func renderTranscript(snap dialogue.Snapshot, width int) string {
	if width < 20 {
		width = 20
	}
	body := lipgloss.NewStyle().Width(width)

	names := make(map[string]string, len(snap.Participants))
	for _, p := range snap.Participants {
		names[p.ID] = p.Name
	}

	var sb strings.Builder
	if len(snap.Messages) == 0 {
		sb.WriteString(styleThinking.Render("Waiting for the first turn…"))
		sb.WriteString("\n")
	}

	round := 0
	for _, m := range snap.Messages {
		if m.Round != round {
			round = m.Round
			sb.WriteString(styleRoundDivider.Render(fmt.Sprintf("── Round %d ──", round)))
			sb.WriteString("\n\n")
		}

		switch m.Kind {
		case dialogue.KindSystem:
			sb.WriteString(body.Inherit(styleSystemMessage).Render(m.Content))
			sb.WriteString("\n\n")

		case dialogue.KindPlaceholder:
			sb.WriteString(styleThinking.Render(m.Participant.Name + " is thinking…"))
			sb.WriteString("\n\n")

		default:
			sb.WriteString(styleSpeaker.Render(m.Participant.Name))
			sb.WriteString(" " + styleSpecialty.Render(m.Participant.Specialty))
			if badge := render.StanceBadge(m.Stance); badge != "" {
				sb.WriteString(" " + badge)
			}
			sb.WriteString("\n")
			sb.WriteString(body.Render(m.Content))
			sb.WriteString("\n")
			for _, r := range m.Reactions {
				who := names[r.ParticipantID]
				if who == "" {
					who = r.ParticipantID
				}
				sb.WriteString(styleReaction.Render(fmt.Sprintf("↳ %s: %s", who, r.Tag)))
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	if snap.Outcome != nil {
		sb.WriteString(render.Markdown(render.OutcomeMarkdown(*snap.Outcome), width))
	}
	return sb.String()
}
