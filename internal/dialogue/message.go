package dialogue

import (
	"fmt"
	"strings"
)

// AddReaction attaches r to the message. A second reaction from the same participant
// replaces the first. It reports whether an existing reaction was replaced.
func (m *Message) AddReaction(r Reaction) bool {
	for i := range m.Reactions {
		if m.Reactions[i].ParticipantID == r.ParticipantID {
			m.Reactions[i] = r
			return true
		}
	}
	m.Reactions = append(m.Reactions, r)
	return false
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

// Countable reports whether the message takes part in tallies and synthesis.
func (m Message) Countable() bool {
	return m.Kind == KindParticipant
}

// FormatLine renders a participant message as "<name> (<specialty>) [<stance>]: <content>".
func FormatLine(m Message) string {
	return fmt.Sprintf("%s (%s) [%s]: %s", m.Participant.Name, m.Participant.Specialty, m.Stance, m.Content)
}

// FormatTranscript renders participant messages one per line, skipping system and
// placeholder messages.
func FormatTranscript(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if !m.Countable() {
			continue
		}
		sb.WriteString(FormatLine(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatDiscussion renders the transcript as prompt context for the next speaker.
// Unlike FormatTranscript it keeps reality checks so participants can respond to them.
func formatDiscussion(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Kind {
		case KindParticipant:
			sb.WriteString(fmt.Sprintf("[round %d] %s\n", m.Round, FormatLine(m)))
		case KindSystem:
			sb.WriteString("\n")
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// formatParticipants renders the roster for prompts.
func formatParticipants(ps []Participant) string {
	var sb strings.Builder
	for _, p := range ps {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.Name, p.Specialty))
	}
	return strings.TrimRight(sb.String(), "\n")
}
