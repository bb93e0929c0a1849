package dialogue

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/mark3labs/roundtable/internal/errors"
	"github.com/mark3labs/roundtable/internal/template"
)

// Synthesizer turns a finished transcript into an Outcome with one generation call.
type Synthesizer struct {
	gen      Generator
	template string
	timeout  time.Duration
}

// NewSynthesizer creates a Synthesizer. An empty tmpl uses template.SynthesisTemplate.
func NewSynthesizer(gen Generator, tmpl string, timeout time.Duration) *Synthesizer {
	if tmpl == "" {
		tmpl = template.SynthesisTemplate
	}
	return &Synthesizer{gen: gen, template: tmpl, timeout: timeout}
}

// Synthesize requests and parses the outcome. System and placeholder messages are
// left out of the transcript. There is no retry.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, participants []Participant, messages []Message) (Outcome, error) {
	transcript := FormatTranscript(messages)
	if transcript == "" {
		return Outcome{}, ErrEmptyTranscript
	}

	prompt := template.Render(s.template, template.Variables{
		Topic:        topic,
		Participants: formatParticipants(participants),
		Transcript:   transcript,
	})

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var resp Response
	err := ierr.Recover(func() error {
		var err error
		resp, err = s.gen.Generate(ctx, Request{Prompt: prompt})
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("synthesis request failed: %w", err)
	}

	return ParseOutcome(resp.Text)
}

// Synthesize produces the session's Outcome Record. It is allowed once per session,
// only after the dialogue completed. On any failure the previous outcome state is
// left untouched and a later call may try again.
func (c *Controller) Synthesize(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	switch {
	case c.state != StateComplete:
		c.mu.Unlock()
		return Outcome{}, ErrNotComplete
	case c.outcome != nil:
		c.mu.Unlock()
		return Outcome{}, ErrOutcomeExists
	case c.synthesizing:
		c.mu.Unlock()
		return Outcome{}, ErrSynthesisInFlight
	}
	c.synthesizing = true
	topic := c.topic
	participants := append([]Participant(nil), c.participants...)
	msgs := c.messagesLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.synthesizing = false
		c.mu.Unlock()
	}()

	c.log.Info("synthesizing outcome for session %s", c.cfg.Session)
	outcome, err := c.synth.Synthesize(ctx, topic, participants, msgs)
	if err != nil {
		c.log.Error("synthesis failed for session %s: %v", c.cfg.Session, err)
		return Outcome{}, err
	}

	stored := outcome.Clone()
	c.mu.Lock()
	c.outcome = &stored
	c.mu.Unlock()

	emitted := outcome.Clone()
	c.emit(Event{Type: EventOutcome, Outcome: &emitted})
	c.record(ctx, "outcome", func(ctx context.Context) error {
		return c.rec.RecordOutcome(ctx, c.cfg.Session, outcome)
	})
	return outcome, nil
}

// HasOutcome reports whether synthesis already succeeded for this session.
func (c *Controller) HasOutcome() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome != nil
}
