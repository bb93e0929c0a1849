package render

import (
	"fmt"
	"strings"

	"charm.land/glamour/v2"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// Markdown renders markdown for the terminal using glamour.
// Falls back to the raw markdown if rendering fails.
func Markdown(content string, width int) string {
	if width <= 0 || width > 120 {
		width = 120
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	// Remove trailing newline that glamour adds
	return strings.TrimSuffix(rendered, "\n")
}

// TranscriptMarkdown renders a session as a markdown document: participants, the
// discussion grouped by round, the stance tally and, if present, the outcome.
func TranscriptMarkdown(snap dialogue.Snapshot) string {
	var sb strings.Builder

	title := snap.Topic
	if title == "" {
		title = snap.Session
	}
	fmt.Fprintf(&sb, "# Roundtable: %s\n\n", title)
	fmt.Fprintf(&sb, "- Session: `%s`\n- Mode: %s\n- State: %s\n", snap.Session, snap.Mode, snap.State)
	if snap.MaxRounds > 0 {
		fmt.Fprintf(&sb, "- Rounds: %d of %d\n", snap.Round, snap.MaxRounds)
	} else if snap.Round > 0 {
		fmt.Fprintf(&sb, "- Rounds: %d\n", snap.Round)
	}

	if len(snap.Participants) > 0 {
		sb.WriteString("\n## Participants\n\n")
		for _, p := range snap.Participants {
			fmt.Fprintf(&sb, "- **%s**, %s\n", p.Name, p.Specialty)
		}
	}

	names := make(map[string]string, len(snap.Participants))
	for _, p := range snap.Participants {
		names[p.ID] = p.Name
	}

	sb.WriteString("\n## Discussion\n")
	round := 0
	for _, m := range snap.Messages {
		if m.Kind == dialogue.KindPlaceholder {
			continue
		}
		if m.Round != round {
			round = m.Round
			fmt.Fprintf(&sb, "\n### Round %d\n", round)
		}
		switch m.Kind {
		case dialogue.KindSystem:
			sb.WriteString("\n")
			for _, line := range strings.Split(m.Content, "\n") {
				fmt.Fprintf(&sb, "> %s\n", line)
			}
		case dialogue.KindParticipant:
			fmt.Fprintf(&sb, "\n**%s** (%s) `%s`\n\n%s\n", m.Participant.Name, m.Participant.Specialty, m.Stance, m.Content)
			if len(m.Reactions) > 0 {
				var rs []string
				for _, r := range m.Reactions {
					who := names[r.ParticipantID]
					if who == "" {
						who = r.ParticipantID
					}
					rs = append(rs, fmt.Sprintf("%s: %s", who, r.Tag))
				}
				fmt.Fprintf(&sb, "\n_Reactions: %s_\n", strings.Join(rs, ", "))
			}
		}
	}

	tally := dialogue.CountStances(snap.Messages)
	if tally.Total() > 0 {
		sb.WriteString("\n## Stances\n\n| Stance | Count | Share |\n|---|---|---|\n")
		for _, s := range tallyOrder {
			n, ok := tally[s]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "| %s | %d | %.0f%% |\n", s, n, tally.Share(s)*100)
		}
	}

	if snap.Outcome != nil {
		sb.WriteString("\n")
		sb.WriteString(OutcomeMarkdown(*snap.Outcome))
	}
	return sb.String()
}

// OutcomeMarkdown renders an outcome record as markdown.
func OutcomeMarkdown(o dialogue.Outcome) string {
	var sb strings.Builder
	sb.WriteString("## Outcome\n")

	sb.WriteString("\n### Consensus\n\n")
	writeList(&sb, o.Consensus)

	sb.WriteString("\n### Tensions\n\n")
	if len(o.Tensions) == 0 {
		sb.WriteString("_None._\n")
	}
	for _, t := range o.Tensions {
		fmt.Fprintf(&sb, "- **%s**: %s\n", strings.Join(t.Between, " vs "), t.Issue)
	}

	sb.WriteString("\n### Non-negotiables\n\n")
	writeList(&sb, o.NonNegotiables)

	sb.WriteString("\n### Decision options\n")
	if len(o.Options) == 0 {
		sb.WriteString("\n_None._\n")
	}
	for i, opt := range o.Options {
		fmt.Fprintf(&sb, "\n#### %d. %s\n\n%s\n", i+1, opt.Title, opt.Description)
		fields := []string{
			field("Changes", opt.Changes),
			field("Unchanged", opt.Unchanged),
			field("Risk", []string{opt.Risk}),
			field("Metrics", opt.Metrics),
		}
		first := true
		for _, f := range fields {
			if f == "" {
				continue
			}
			if first {
				sb.WriteString("\n")
				first = false
			}
			sb.WriteString(f)
		}
	}
	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	if len(items) == 0 {
		sb.WriteString("_None._\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

// field renders "- label: a; b" or "" when items are blank.
func field(label string, items []string) string {
	var kept []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return fmt.Sprintf("- %s: %s\n", label, strings.Join(kept, "; "))
}
