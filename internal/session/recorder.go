package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/nats"
)

var _ dialogue.Recorder = (*Store)(nil)

// publish marshals meta and appends the event.
func (s *Store) publish(ctx context.Context, session, typ, action, data string, meta any) error {
	event := Event{
		Session: session,
		Type:    typ,
		Action:  action,
		Data:    data,
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal %s metadata: %w", typ, err)
		}
		event.Meta = raw
	}
	if _, err := s.PublishEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s %s event: %w", typ, action, err)
	}
	return nil
}

// RecordStart logs the start of a dialogue on topic.
func (s *Store) RecordStart(ctx context.Context, session, topic string, mode dialogue.Mode) error {
	return s.publish(ctx, session, nats.EventTypeSession, "start", topic, map[string]any{"mode": mode})
}

// RecordParticipants logs the roster in effect.
func (s *Store) RecordParticipants(ctx context.Context, session string, participants []dialogue.Participant) error {
	return s.publish(ctx, session, nats.EventTypeParticipants, "set", "", participants)
}

// RecordMessage logs a completed participant or system message.
func (s *Store) RecordMessage(ctx context.Context, session string, msg dialogue.Message) error {
	return s.publish(ctx, session, nats.EventTypeMessage, "add", msg.ID, msg)
}

// RecordReaction logs a reaction attached to messageID.
func (s *Store) RecordReaction(ctx context.Context, session, messageID string, r dialogue.Reaction) error {
	return s.publish(ctx, session, nats.EventTypeReaction, "add", messageID, r)
}

// RecordState logs a lifecycle transition.
func (s *Store) RecordState(ctx context.Context, session string, state dialogue.State, round int) error {
	return s.publish(ctx, session, nats.EventTypeState, "set", string(state), map[string]any{
		"state": state,
		"round": round,
	})
}

// RecordOutcome logs the synthesized outcome record.
func (s *Store) RecordOutcome(ctx context.Context, session string, outcome dialogue.Outcome) error {
	return s.publish(ctx, session, nats.EventTypeOutcome, "set", "", outcome)
}

// RecordReset logs that the transcript was discarded.
func (s *Store) RecordReset(ctx context.Context, session string) error {
	return s.publish(ctx, session, nats.EventTypeSession, "reset", "", nil)
}
