package dialogue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/template"
	"github.com/rs/xid"
)

// Config controls a Controller. Zero values fall back to the defaults noted per field.
type Config struct {
	Session           string        // session name used by the Recorder; "default"
	Mode              Mode          // chat
	MaxRounds         int           // 3
	RealityCheckRound int           // round preceded by the reality check; 0 disables
	Pacing            time.Duration // delay between consecutive turns; 0 disables
	TurnTimeout       time.Duration // per generation call; 0 means none
	Concurrency       int           // generation calls in flight; 1 is strictly sequential
	AutoReact         bool          // each turn reacts to the previous speaker of its round
	Templates         template.Set  // template.DefaultSet(Mode)
	RealityCheck      string        // template.RealityCheckMessage()

	// RoundStart runs before each round's roster snapshot. Its output is added to the
	// round's prompts as extra context.
	RoundStart func(ctx context.Context, round int) string
}

// DefaultConfig returns the observed protocol defaults: three rounds, a reality check
// before round 2 and 1.5s pacing.
func DefaultConfig() Config {
	return Config{
		Session:           "default",
		Mode:              ModeChat,
		MaxRounds:         3,
		RealityCheckRound: 2,
		Pacing:            1500 * time.Millisecond,
		Concurrency:       1,
	}
}

func (cfg Config) normalize() Config {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeChat
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.RealityCheckRound < 0 {
		cfg.RealityCheckRound = 0
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Templates == (template.Set{}) {
		cfg.Templates = template.DefaultSet(string(cfg.Mode))
	}
	if cfg.RealityCheck == "" {
		cfg.RealityCheck = template.RealityCheckMessage()
	}
	return cfg
}

// EventType identifies a change published to observers.
type EventType string

const (
	EventMessageAdded   EventType = "message_added"
	EventMessageUpdated EventType = "message_updated" // placeholder became a turn
	EventMessageRemoved EventType = "message_removed" // failed turn placeholder dropped
	EventReaction       EventType = "reaction"
	EventState          EventType = "state"
	EventParticipants   EventType = "participants"
	EventOutcome        EventType = "outcome"
	EventReset          EventType = "reset"
)

// Event is delivered synchronously to observers after the controller lock is released.
type Event struct {
	Type         EventType     `json:"type"`
	Message      *Message      `json:"message,omitempty"`
	MessageID    string        `json:"message_id,omitempty"`
	Reaction     *Reaction     `json:"reaction,omitempty"`
	State        State         `json:"state,omitempty"`
	Round        int           `json:"round,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Outcome      *Outcome      `json:"outcome,omitempty"`
}

// Controller is the Round Controller. One goroutine drives Run; other goroutines
// interact through Pause, Resume, Stop, React, SetParticipants and the read accessors.
type Controller struct {
	cfg   Config
	gen   Generator
	rec   Recorder
	synth *Synthesizer
	log   *logger.Named

	mu           sync.Mutex
	topic        string
	state        State
	round        int
	participants []Participant
	messages     []*Message
	outcome      *Outcome
	running      bool
	inFlight     int
	synthesizing bool
	stop         *StopToken
	pauseReq     bool
	resume       chan struct{}

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// NewController creates an idle controller. A nil Recorder discards records.
func NewController(cfg Config, gen Generator, rec Recorder) *Controller {
	cfg = cfg.normalize()
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Controller{
		cfg:       cfg,
		gen:       gen,
		rec:       rec,
		synth:     NewSynthesizer(gen, cfg.Templates.Synthesis, cfg.TurnTimeout),
		log:       logger.For("dialogue"),
		state:     StateIdle,
		observers: make(map[int]func(Event)),
	}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Subscribe registers fn for every Event and returns a function removing it.
// Observers run on the goroutine that caused the change and must not block.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.obsMu.Lock()
	fns := make([]func(Event), 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// record forwards to the Recorder, logging failures. Records outlive the caller's
// cancellation so the terminal state still reaches the store on shutdown.
func (c *Controller) record(ctx context.Context, what string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.log.Error("failed to record %s for session %s: %v", what, c.cfg.Session, err)
	}
}

// SetParticipants replaces the roster. It is rejected while a turn is in flight; a
// running dialogue picks the new roster up at the start of the next round.
func (c *Controller) SetParticipants(ctx context.Context, participants []Participant) error {
	if len(participants) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("%w: id and name are required", ErrInvalidParticipant)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidParticipant, p.ID)
		}
		seen[p.ID] = true
	}

	c.mu.Lock()
	if c.inFlight > 0 {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.participants = append([]Participant(nil), participants...)
	roster := append([]Participant(nil), participants...)
	c.mu.Unlock()

	c.log.Info("roster set: %d participants", len(roster))
	c.emit(Event{Type: EventParticipants, Participants: roster})
	c.record(ctx, "participants", func(ctx context.Context) error {
		return c.rec.RecordParticipants(ctx, c.cfg.Session, roster)
	})
	return nil
}

// Run drives the dialogue from round 1 until the last round completes, the stop
// token is observed or ctx is cancelled. It returns ctx.Err() on cancellation and
// nil otherwise; turn failures are not errors.
func (c *Controller) Run(ctx context.Context, topic string) error {
	c.mu.Lock()
	switch {
	case c.running:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case c.state == StateComplete:
		c.mu.Unlock()
		return ErrSessionComplete
	case len(c.participants) == 0:
		c.mu.Unlock()
		return ErrNoParticipants
	}
	c.running = true
	c.topic = topic
	c.stop = NewStopToken()
	stop := c.stop
	participants := append([]Participant(nil), c.participants...)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.log.Info("session %s: %q with %d participants, %d rounds", c.cfg.Session, topic, len(participants), c.cfg.MaxRounds)
	c.record(ctx, "start", func(ctx context.Context) error {
		return c.rec.RecordStart(ctx, c.cfg.Session, topic, c.cfg.Mode)
	})
	c.record(ctx, "participants", func(ctx context.Context) error {
		return c.rec.RecordParticipants(ctx, c.cfg.Session, participants)
	})
	c.setState(ctx, StateRunning, 1)

	for {
		round := c.currentRound()

		var hookOutput string
		if c.cfg.RoundStart != nil {
			hookOutput = c.cfg.RoundStart(ctx, round)
		}
		roster := c.Participants()

		c.log.Debug("round %d: %d turns", round, len(roster))
		stopped, err := c.runRound(ctx, stop, round, roster, hookOutput)
		if err != nil {
			c.log.Warn("round %d interrupted: %v", round, err)
			c.finish(ctx)
			return err
		}
		if stopped || stop.Stopped() {
			c.log.Info("stop observed in round %d", round)
			c.finish(ctx)
			return nil
		}

		if round >= c.cfg.MaxRounds {
			c.log.Info("session %s complete after %d rounds", c.cfg.Session, round)
			c.mu.Lock()
			c.releasePauseLocked()
			c.mu.Unlock()
			c.setState(ctx, StateComplete, round)
			return nil
		}

		next := round + 1
		if next == c.cfg.RealityCheckRound {
			c.injectRealityCheck(ctx, next)
		}
		c.setState(ctx, StateRunning, next)
	}
}

func (c *Controller) currentRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// setState updates state and round, then notifies observers and the recorder.
func (c *Controller) setState(ctx context.Context, st State, round int) {
	c.mu.Lock()
	c.state = st
	c.round = round
	c.mu.Unlock()

	c.emit(Event{Type: EventState, State: st, Round: round})
	c.record(ctx, "state", func(ctx context.Context) error {
		return c.rec.RecordState(ctx, c.cfg.Session, st, round)
	})
}

// finish applies the stop rule: complete if anything was said, idle otherwise.
func (c *Controller) finish(ctx context.Context) {
	c.mu.Lock()
	st := StateIdle
	if len(c.messages) > 0 {
		st = StateComplete
	}
	round := c.round
	c.releasePauseLocked()
	c.mu.Unlock()

	c.setState(ctx, st, round)
}

func (c *Controller) injectRealityCheck(ctx context.Context, round int) {
	msg := &Message{
		ID:        xid.New().String(),
		Kind:      KindSystem,
		Round:     round,
		Content:   c.cfg.RealityCheck,
		CreatedAt: time.Now(),
	}
	c.log.Debug("reality check before round %d", round)
	c.appendMessage(ctx, msg)
}

// appendMessage adds msg to the transcript. Placeholders are not recorded.
func (c *Controller) appendMessage(ctx context.Context, msg *Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	cp := msg.Clone()
	c.mu.Unlock()

	c.emit(Event{Type: EventMessageAdded, Message: &cp})
	if cp.Kind != KindPlaceholder {
		c.record(ctx, "message", func(ctx context.Context) error {
			return c.rec.RecordMessage(ctx, c.cfg.Session, cp)
		})
	}
}

// Pause asks the dialogue to park at the next turn boundary. The state becomes
// paused once the boundary is reached.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	if !c.pauseReq {
		c.pauseReq = true
		c.resume = make(chan struct{})
	}
	return nil
}

// Resume releases a pause, or cancels one not yet reached. The round index is kept.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pauseReq {
		return ErrNotPaused
	}
	c.pauseReq = false
	close(c.resume)
	return nil
}

// IsPaused reports whether a pause is requested or in effect.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseReq
}

// Stop signals the stop token. The in-flight turn finishes; no further turns or
// rounds are issued. A paused dialogue is released so it can observe the stop.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop.Stop()
	}
	c.releasePauseLocked()
}

// releasePauseLocked drops a pending pause request. c.mu must be held.
func (c *Controller) releasePauseLocked() {
	if c.pauseReq {
		c.pauseReq = false
		close(c.resume)
	}
}

// waitIfPaused parks at a turn boundary while a pause is requested.
func (c *Controller) waitIfPaused(ctx context.Context, stop *StopToken) error {
	c.mu.Lock()
	if !c.pauseReq {
		c.mu.Unlock()
		return nil
	}
	ch := c.resume
	round := c.round
	c.mu.Unlock()

	c.log.Info("paused in round %d", round)
	c.setState(ctx, StatePaused, round)

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if stop.Stopped() {
		return nil
	}
	c.log.Info("resumed in round %d", round)
	c.setState(ctx, StateRunning, round)
	return nil
}

// React attaches a reaction from participantID to a participant message.
func (c *Controller) React(ctx context.Context, messageID, participantID string, tag ReactionTag) error {
	if _, err := ParseTag(string(tag)); err != nil {
		return err
	}

	c.mu.Lock()
	msg := c.findLocked(messageID)
	switch {
	case msg == nil:
		c.mu.Unlock()
		return ErrMessageNotFound
	case msg.Kind != KindParticipant:
		c.mu.Unlock()
		return ErrNotReactable
	case !c.knownLocked(participantID):
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	case msg.Participant.ID == participantID:
		c.mu.Unlock()
		return ErrSelfReaction
	}
	c.mu.Unlock()

	c.addReaction(ctx, messageID, Reaction{ParticipantID: participantID, Tag: tag})
	return nil
}

func (c *Controller) addReaction(ctx context.Context, messageID string, r Reaction) {
	c.mu.Lock()
	msg := c.findLocked(messageID)
	if msg == nil {
		c.mu.Unlock()
		return
	}
	msg.AddReaction(r)
	cp := msg.Clone()
	c.mu.Unlock()

	c.emit(Event{Type: EventReaction, Message: &cp, MessageID: messageID, Reaction: &r})
	c.record(ctx, "reaction", func(ctx context.Context) error {
		return c.rec.RecordReaction(ctx, c.cfg.Session, messageID, r)
	})
}

func (c *Controller) findLocked(id string) *Message {
	for _, m := range c.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// knownLocked reports whether id is on the roster or authored a message.
func (c *Controller) knownLocked(id string) bool {
	for _, p := range c.participants {
		if p.ID == id {
			return true
		}
	}
	for _, m := range c.messages {
		if m.Kind == KindParticipant && m.Participant.ID == id {
			return true
		}
	}
	return false
}

// Reset starts a new session: transcript, outcome and synthesis guard are cleared.
// The roster is kept.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.messages = nil
	c.outcome = nil
	c.topic = ""
	c.round = 0
	c.state = StateIdle
	c.stop = nil
	c.releasePauseLocked()
	c.mu.Unlock()

	c.log.Info("session %s reset", c.cfg.Session)
	c.emit(Event{Type: EventReset, State: StateIdle})
	c.record(ctx, "reset", func(ctx context.Context) error {
		return c.rec.RecordReset(ctx, c.cfg.Session)
	})
	return nil
}

// State returns the controller state and current round.
func (c *Controller) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.round
}

// Participants returns a copy of the roster.
func (c *Controller) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Participant(nil), c.participants...)
}

// Messages returns a copy of the transcript, placeholders included.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messagesLocked()
}

func (c *Controller) messagesLocked() []Message {
	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Clone())
	}
	return out
}

// Outcome returns the synthesized outcome, or nil when none was generated.
func (c *Controller) Outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return nil
	}
	o := c.outcome.Clone()
	return &o
}

// Tally recomputes the stance distribution over the current transcript.
func (c *Controller) Tally() Tally {
	return CountStances(c.Messages())
}

// Busy reports whether a turn or a synthesis is outstanding, for disabling the
// controls that would trigger them again.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0 || c.synthesizing
}

// Snapshot returns a consistent copy of the whole session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messagesLocked()
	snap := Snapshot{
		Session:      c.cfg.Session,
		Topic:        c.topic,
		Mode:         c.cfg.Mode,
		State:        c.state,
		Round:        c.round,
		MaxRounds:    c.cfg.MaxRounds,
		Participants: append([]Participant(nil), c.participants...),
		Messages:     msgs,
		Tally:        CountStances(msgs),
	}
	if c.outcome != nil {
		o := c.outcome.Clone()
		snap.Outcome = &o
	}
	return snap
}

// Restore loads a previously recorded session into a controller that is not
// running. Whatever state was recorded, the stop rule applies: complete when the
// session has messages, idle otherwise.
func (c *Controller) Restore(snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	c.topic = snap.Topic
	c.round = snap.Round
	c.participants = append([]Participant(nil), snap.Participants...)
	c.messages = nil
	for _, m := range snap.Messages {
		if m.Kind == KindPlaceholder {
			continue
		}
		cp := m.Clone()
		c.messages = append(c.messages, &cp)
	}
	c.outcome = nil
	if snap.Outcome != nil {
		o := snap.Outcome.Clone()
		c.outcome = &o
	}

	c.state = StateIdle
	if len(c.messages) > 0 {
		c.state = StateComplete
	}
	return nil
}
