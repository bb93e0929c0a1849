package dialogue

import "context"

// Request is one generation call.
type Request struct {
	Prompt string
	System string
}

// Response is the free-text body returned by a backend. It may or may not contain
// the JSON object the prompt asked for.
type Response struct {
	Text string
}

// Generator is the single external boundary of the protocol.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Recorder receives durable facts about a session. Failures are logged by the
// controller and never interrupt the dialogue.
type Recorder interface {
	RecordStart(ctx context.Context, session, topic string, mode Mode) error
	RecordParticipants(ctx context.Context, session string, participants []Participant) error
	RecordMessage(ctx context.Context, session string, msg Message) error
	RecordReaction(ctx context.Context, session, messageID string, r Reaction) error
	RecordState(ctx context.Context, session string, state State, round int) error
	RecordOutcome(ctx context.Context, session string, outcome Outcome) error
	RecordReset(ctx context.Context, session string) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordStart(context.Context, string, string, Mode) error         { return nil }
func (NopRecorder) RecordParticipants(context.Context, string, []Participant) error { return nil }
func (NopRecorder) RecordMessage(context.Context, string, Message) error            { return nil }
func (NopRecorder) RecordReaction(context.Context, string, string, Reaction) error  { return nil }
func (NopRecorder) RecordState(context.Context, string, State, int) error           { return nil }
func (NopRecorder) RecordOutcome(context.Context, string, Outcome) error            { return nil }
func (NopRecorder) RecordReset(context.Context, string) error                       { return nil }
