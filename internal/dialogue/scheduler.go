package dialogue

import (
	"context"
	"errors"
	"time"

	ierr "github.com/mark3labs/roundtable/internal/errors"
	"github.com/mark3labs/roundtable/internal/template"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// runRound issues one turn per roster participant, in roster order. It reports
// stopped when the stop token cut the round short, and returns an error only when
// ctx is cancelled.
func (c *Controller) runRound(ctx context.Context, stop *StopToken, round int, roster []Participant, hookOutput string) (bool, error) {
	if c.cfg.Concurrency > 1 && len(roster) > 1 {
		return c.runRoundConcurrent(ctx, stop, round, roster, hookOutput)
	}

	for i, p := range roster {
		if i > 0 && c.cfg.Pacing > 0 {
			if err := pace(ctx, stop, c.cfg.Pacing); err != nil {
				return false, err
			}
		}
		if err := c.waitIfPaused(ctx, stop); err != nil {
			return false, err
		}
		if stop.Stopped() {
			return true, nil
		}

		id := c.beginTurn(ctx, round, p)
		resp, err := c.generate(ctx, c.turnRequest(round, p, roster, hookOutput))
		if err := c.completeTurn(ctx, round, id, p, resp, err); err != nil {
			return false, err
		}
	}
	return false, nil
}

// runRoundConcurrent keeps up to Concurrency generation calls in flight. Turns are
// committed in roster order once all launched calls return, and every prompt sees
// the transcript as it stood when the turn was launched.
func (c *Controller) runRoundConcurrent(ctx context.Context, stop *StopToken, round int, roster []Participant, hookOutput string) (bool, error) {
	type pending struct {
		id   string
		p    Participant
		resp Response
		err  error
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)

	var (
		turns    []*pending
		stopped  bool
		firstErr error
	)
	for _, p := range roster {
		if err := c.waitIfPaused(ctx, stop); err != nil {
			firstErr = err
			break
		}
		if stop.Stopped() {
			stopped = true
			break
		}

		t := &pending{p: p}
		t.id = c.beginTurn(ctx, round, p)
		turns = append(turns, t)
		req := c.turnRequest(round, p, roster, hookOutput)
		g.Go(func() error {
			t.resp, t.err = c.generate(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, t := range turns {
		if err := c.completeTurn(ctx, round, t.id, t.p, t.resp, t.err); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return stopped, firstErr
}

// pace waits between turns. A stop cuts the wait short.
func pace(ctx context.Context, stop *StopToken, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-stop.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginTurn appends the in-progress placeholder for p and marks a turn in flight.
func (c *Controller) beginTurn(ctx context.Context, round int, p Participant) string {
	msg := &Message{
		ID:          xid.New().String(),
		Kind:        KindPlaceholder,
		Participant: p,
		Round:       round,
		CreatedAt:   time.Now(),
	}
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()

	c.log.Debug("round %d: turn of %s", round, p.Name)
	c.appendMessage(ctx, msg)
	return msg.ID
}

// turnRequest renders the prompts for p from the transcript as it stands now.
func (c *Controller) turnRequest(round int, p Participant, roster []Participant, hookOutput string) Request {
	c.mu.Lock()
	topic := c.topic
	msgs := c.messagesLocked()
	c.mu.Unlock()

	vars := template.Variables{
		Topic:        topic,
		Name:         p.Name,
		Specialty:    p.Specialty,
		Role:         p.Role(),
		Backstory:    p.Backstory,
		Round:        round,
		MaxRounds:    c.cfg.MaxRounds,
		Participants: formatParticipants(roster),
		Transcript:   template.Section("Discussion so far", formatDiscussion(msgs)),
		Hooks:        template.Section("Context", hookOutput),
	}
	return Request{
		Prompt: template.Render(c.cfg.Templates.Turn, vars),
		System: template.Render(c.cfg.Templates.System, vars),
	}
}

// generate performs one generation call. The stop token never reaches it; only
// ctx cancellation and the optional turn timeout can cut it short. Backend panics
// come back as *ierr.PanicError.
func (c *Controller) generate(ctx context.Context, req Request) (Response, error) {
	if c.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TurnTimeout)
		defer cancel()
	}
	var resp Response
	err := ierr.Recover(func() error {
		var err error
		resp, err = c.gen.Generate(ctx, req)
		return err
	})
	return resp, err
}

// completeTurn turns the placeholder into a participant message, or drops it when
// the call failed. Failed turns are not retried.
func (c *Controller) completeTurn(ctx context.Context, round int, id string, p Participant, resp Response, genErr error) error {
	var (
		content string
		stance  Stance
	)
	if genErr == nil {
		content, stance = Interpret(c.cfg.Mode, resp.Text)
		if content == "" {
			genErr = ErrEmptyResponse
		}
	}

	if genErr != nil {
		c.dropTurn(id)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var panicErr *ierr.PanicError
		if errors.As(genErr, &panicErr) {
			c.log.Error("turn of %s in round %d panicked: %v\n%s", p.Name, round, panicErr.Value, panicErr.StackTrace)
		} else {
			c.log.Warn("turn of %s in round %d dropped: %v", p.Name, round, genErr)
		}
		return nil
	}

	c.mu.Lock()
	c.inFlight--
	msg := c.findLocked(id)
	if msg == nil {
		c.mu.Unlock()
		return nil
	}
	msg.Kind = KindParticipant
	msg.Content = content
	msg.Stance = stance
	msg.CreatedAt = time.Now()
	cp := msg.Clone()
	c.mu.Unlock()

	c.log.Debug("round %d: %s [%s]", round, p.Name, stance)
	c.emit(Event{Type: EventMessageUpdated, Message: &cp, MessageID: id})
	c.record(ctx, "message", func(ctx context.Context) error {
		return c.rec.RecordMessage(ctx, c.cfg.Session, cp)
	})

	if c.cfg.AutoReact {
		c.autoReact(ctx, cp)
	}
	return nil
}

// dropTurn removes a failed turn's placeholder.
func (c *Controller) dropTurn(id string) {
	c.mu.Lock()
	c.inFlight--
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventMessageRemoved, MessageID: id})
}

// autoReact attaches the reaction implied by msg's stance to the previous
// participant message of the same round from someone else.
func (c *Controller) autoReact(ctx context.Context, msg Message) {
	tag, ok := TagForStance(msg.Stance)
	if !ok {
		return
	}

	c.mu.Lock()
	var target string
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.ID == msg.ID {
			for j := i - 1; j >= 0; j-- {
				prev := c.messages[j]
				if prev.Round != msg.Round {
					break
				}
				if prev.Kind == KindParticipant && prev.Participant.ID != msg.Participant.ID {
					target = prev.ID
					break
				}
			}
			break
		}
	}
	c.mu.Unlock()

	if target != "" {
		c.addReaction(ctx, target, Reaction{ParticipantID: msg.Participant.ID, Tag: tag})
	}
}
