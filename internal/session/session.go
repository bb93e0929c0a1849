package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/mark3labs/roundtable/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
)

// Event represents a generic event stored in the JetStream event log.
// Every fact the dialogue controller records is stored as an event
// following an append-only event sourcing pattern.
type Event struct {
	ID        string          `json:"id"`        // NATS message sequence ID
	Timestamp time.Time       `json:"timestamp"` // When the event occurred
	Session   string          `json:"session"`   // Session name
	Type      string          `json:"type"`      // Event type: session, participants, message, reaction, state, outcome
	Action    string          `json:"action"`    // Action type: start, reset, set, add
	Meta      json.RawMessage `json:"meta"`      // Action-specific metadata
	Data      string          `json:"data"`      // Primary content (topic, message id, etc.)
}

// Store manages session state through JetStream event sourcing.
// It provides methods for publishing events and loading state from the event stream.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a new Store instance with the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{
		js:     js,
		stream: stream,
	}
}

// PublishEvent appends an event to the JetStream event log.
// Events are published to subjects following the pattern: roundtable.{session}.{type}
func (s *Store) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event: %v", err)
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Session, event.Type)

	logger.Debug("Publishing event: session=%s type=%s action=%s", event.Session, event.Type, event.Action)

	ack, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		logger.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Debug("Event published successfully: seq=%d", ack.Sequence)
	return ack, nil
}

// State represents the current state of a session, reconstructed from events.
// It implements the reduce pattern by applying events to build up the current state.
type State struct {
	Session      string                 `json:"session"`
	Topic        string                 `json:"topic"`
	Mode         dialogue.Mode          `json:"mode"`
	Status       dialogue.State         `json:"status"`
	Round        int                    `json:"round"`
	Participants []dialogue.Participant `json:"participants"`
	Messages     []*dialogue.Message    `json:"messages"`
	Outcome      *dialogue.Outcome      `json:"outcome,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func newState(session string) *State {
	return &State{Session: session, Status: dialogue.StateIdle}
}

// Apply applies an event to the state, implementing the reduce pattern.
// Malformed metadata leaves the state unchanged.
func (st *State) Apply(event Event) {
	switch event.Type {
	case nats.EventTypeSession:
		st.applySessionEvent(event)
	case nats.EventTypeParticipants:
		var ps []dialogue.Participant
		if err := json.Unmarshal(event.Meta, &ps); err != nil {
			return
		}
		st.Participants = ps
	case nats.EventTypeMessage:
		st.applyMessageEvent(event)
	case nats.EventTypeReaction:
		st.applyReactionEvent(event)
	case nats.EventTypeState:
		var meta struct {
			State dialogue.State `json:"state"`
			Round int            `json:"round"`
		}
		if err := json.Unmarshal(event.Meta, &meta); err != nil {
			return
		}
		st.Status = meta.State
		st.Round = meta.Round
	case nats.EventTypeOutcome:
		var o dialogue.Outcome
		if err := json.Unmarshal(event.Meta, &o); err != nil {
			return
		}
		st.Outcome = &o
	default:
		return
	}
	st.UpdatedAt = event.Timestamp
}

// applySessionEvent handles start and reset. Both begin a fresh transcript.
func (st *State) applySessionEvent(event Event) {
	switch event.Action {
	case "start":
		var meta struct {
			Mode dialogue.Mode `json:"mode"`
		}
		if err := json.Unmarshal(event.Meta, &meta); err != nil {
			return
		}
		st.Topic = event.Data
		st.Mode = meta.Mode
		st.Messages = nil
		st.Outcome = nil
		st.Round = 0
	case "reset":
		st.Topic = ""
		st.Messages = nil
		st.Outcome = nil
		st.Round = 0
		st.Status = dialogue.StateIdle
	}
}

// applyMessageEvent appends a completed message. A repeated id replaces the earlier copy.
func (st *State) applyMessageEvent(event Event) {
	var msg dialogue.Message
	if err := json.Unmarshal(event.Meta, &msg); err != nil {
		return
	}
	for i, m := range st.Messages {
		if m.ID == msg.ID {
			st.Messages[i] = &msg
			return
		}
	}
	st.Messages = append(st.Messages, &msg)
}

// applyReactionEvent attaches a reaction to the message named in Data.
func (st *State) applyReactionEvent(event Event) {
	var r dialogue.Reaction
	if err := json.Unmarshal(event.Meta, &r); err != nil {
		return
	}
	for _, m := range st.Messages {
		if m.ID == event.Data {
			m.AddReaction(r)
			return
		}
	}
}

// Snapshot converts the reduced state into the dialogue snapshot shape.
func (st *State) Snapshot() dialogue.Snapshot {
	msgs := make([]dialogue.Message, 0, len(st.Messages))
	for _, m := range st.Messages {
		msgs = append(msgs, m.Clone())
	}
	snap := dialogue.Snapshot{
		Session:      st.Session,
		Topic:        st.Topic,
		Mode:         st.Mode,
		State:        st.Status,
		Round:        st.Round,
		Participants: append([]dialogue.Participant(nil), st.Participants...),
		Messages:     msgs,
		Tally:        dialogue.CountStances(msgs),
	}
	if st.Outcome != nil {
		o := st.Outcome.Clone()
		snap.Outcome = &o
	}
	return snap
}

// LoadState reconstructs the current state of a session by reading and reducing
// all events from the JetStream event log.
func (s *Store) LoadState(ctx context.Context, session string) (*State, error) {
	logger.Debug("Loading state for session: %s", session)

	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: nats.SubjectForSession(session),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		logger.Error("Failed to create consumer for session %s: %v", session, err)
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	state := newState(session)

	const batchSize = 1000
	malformedCount := 0
	totalEvents := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			logger.Debug("Finished reading events (batch fetch complete)")
			break
		}

		msgCount := 0
		for msg := range msgs.Messages() {
			msgCount++
			totalEvents++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				malformedCount++
				if meta, mErr := msg.Metadata(); mErr == nil {
					logger.Warn("Skipping malformed event (seq=%d): %v", meta.Sequence.Stream, err)
				}
				msg.Ack()
				continue
			}

			if event.ID == "" {
				if meta, mErr := msg.Metadata(); mErr == nil {
					event.ID = strconv.FormatUint(meta.Sequence.Stream, 10)
				}
			}

			state.Apply(event)
			msg.Ack()
		}

		logger.Debug("Processed batch: %d events", msgCount)
		if msgCount < batchSize {
			break
		}
	}

	if malformedCount > 0 {
		logger.Warn("Skipped %d malformed events while loading state", malformedCount)
	}

	logger.Debug("State loaded: %d total events, %d messages, round %d", totalEvents, len(state.Messages), state.Round)
	return state, nil
}

// ListSessions returns the names of all sessions that were ever started, sorted.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	filter := nats.SubjectForEvent("*", nats.EventTypeSession)
	info, err := s.stream.Info(ctx, jetstream.WithSubjectFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream info: %w", err)
	}

	var names []string
	for subject := range info.State.Subjects {
		if name, ok := nats.SessionFromSubject(subject); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Watch delivers events for session published after the call, until ctx ends.
func (s *Store) Watch(ctx context.Context, session string, fn func(Event)) error {
	consumer, err := s.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{nats.SubjectForSession(session)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			logger.Warn("Skipping malformed event on %s: %v", msg.Subject(), err)
			return
		}
		fn(event)
	})
	if err != nil {
		return fmt.Errorf("failed to consume events: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}
