package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/colorprofile"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// Printer streams controller events as styled lines for headless runs. Colors are
// downsampled to what the output supports.
type Printer struct {
	w     *colorprofile.Writer
	width int
	mu    sync.Mutex
	names map[string]string
	round int
}

// NewPrinter creates a printer writing to w. environ is used to detect the color
// profile (pass os.Environ()).
func NewPrinter(w io.Writer, environ []string, width int) *Printer {
	return &Printer{
		w:     colorprofile.NewWriter(w, environ),
		width: width,
		names: make(map[string]string),
	}
}

// SetProfile overrides the detected color profile.
func (p *Printer) SetProfile(profile colorprofile.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.w.Profile = profile
}

// Handle prints one event. It is safe to register directly with Controller.Subscribe.
func (p *Printer) Handle(ev dialogue.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case dialogue.EventParticipants:
		for _, part := range ev.Participants {
			p.names[part.ID] = part.Name
		}

	case dialogue.EventState:
		switch ev.State {
		case dialogue.StateRunning:
			if ev.Round != p.round {
				p.round = ev.Round
				p.println("\n" + Title(fmt.Sprintf("── Round %d ──", ev.Round)))
			} else {
				p.println(Muted("resumed"))
			}
		case dialogue.StatePaused:
			p.println(Muted("paused"))
		case dialogue.StateComplete:
			p.println("\n" + Title("Dialogue complete"))
		case dialogue.StateIdle:
			p.println(Muted("stopped before any turn completed"))
		}

	case dialogue.EventMessageAdded:
		if ev.Message == nil {
			return
		}
		switch ev.Message.Kind {
		case dialogue.KindSystem:
			p.println("\n" + styleSystem.Render(ev.Message.Content) + "\n")
		case dialogue.KindPlaceholder:
			p.println(Muted(ev.Message.Participant.Name + " is thinking…"))
		}

	case dialogue.EventMessageUpdated:
		if ev.Message == nil {
			return
		}
		m := ev.Message
		header := styleName.Render(m.Participant.Name) + " " + Muted("("+m.Participant.Specialty+")") + " " + StanceBadge(m.Stance)
		p.println(header)
		p.println(strings.TrimRight(m.Content, "\n") + "\n")

	case dialogue.EventMessageRemoved:
		p.println(Muted("turn skipped"))

	case dialogue.EventReaction:
		if ev.Reaction == nil || ev.Message == nil {
			return
		}
		who := p.names[ev.Reaction.ParticipantID]
		if who == "" {
			who = ev.Reaction.ParticipantID
		}
		p.println(Muted(fmt.Sprintf("  ↳ %s reacts %s to %s", who, ev.Reaction.Tag, ev.Message.Participant.Name)))

	case dialogue.EventOutcome:
		if ev.Outcome != nil {
			p.println(Markdown(OutcomeMarkdown(*ev.Outcome), p.width))
		}

	case dialogue.EventReset:
		p.round = 0
		p.println(Muted("session reset"))
	}
}

// Summary prints the stance tally of a finished dialogue.
func (p *Printer) Summary(t dialogue.Tally) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(TallyLine(t))
	p.println(StanceBar(t, 40))
}

// Transcript prints a whole session as rendered markdown.
func (p *Printer) Transcript(snap dialogue.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(Markdown(TranscriptMarkdown(snap), p.width))
}

// Println writes a plain line.
func (p *Printer) Println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(s)
}

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}
