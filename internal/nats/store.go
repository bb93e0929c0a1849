package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName = "roundtable_events"

	// SubjectPrefix is the first token of every roundtable subject.
	SubjectPrefix = "roundtable"

	// Event types
	EventTypeSession      = "session"
	EventTypeParticipants = "participants"
	EventTypeMessage      = "message"
	EventTypeReaction     = "reaction"
	EventTypeState        = "state"
	EventTypeOutcome      = "outcome"
)

// SubjectForSession returns the wildcard subject pattern for all events in a session.
// Example: "roundtable.pricing.>"
func SubjectForSession(session string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, session)
}

// SubjectForEvent returns the specific subject for an event type in a session.
// Example: "roundtable.pricing.message"
func SubjectForEvent(session, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, session, eventType)
}

// SessionFromSubject extracts the session name from an event subject.
func SessionFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != SubjectPrefix {
		return "", false
	}
	return parts[1], true
}

// SetupStream creates or updates the JetStream stream for roundtable events.
// The stream captures all events for all sessions with 30-day retention.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
}

// CreateConsumer creates a durable consumer for reading event history.
// The consumer starts from the beginning and requires explicit acknowledgment.
func CreateConsumer(ctx context.Context, stream jetstream.Stream, name string) (jetstream.Consumer, error) {
	return stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
}
