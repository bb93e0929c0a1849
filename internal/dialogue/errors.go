package dialogue

import "errors"

var (
	ErrAlreadyRunning     = errors.New("dialogue already running")
	ErrNotRunning         = errors.New("dialogue not running")
	ErrNotPaused          = errors.New("dialogue not paused")
	ErrSessionComplete    = errors.New("session already complete, reset to start a new one")
	ErrNoParticipants     = errors.New("no participants")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrTurnInFlight       = errors.New("a turn is in flight")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotReactable       = errors.New("only participant messages accept reactions")
	ErrSelfReaction       = errors.New("participants cannot react to their own message")
	ErrInvalidTag         = errors.New("invalid reaction tag")
	ErrInvalidMode        = errors.New("invalid mode (must be chat or hybrid)")
	ErrEmptyResponse      = errors.New("empty response")
	ErrNotComplete        = errors.New("session not complete")
	ErrOutcomeExists      = errors.New("outcome already generated for this session")
	ErrSynthesisInFlight  = errors.New("synthesis already in flight")
	ErrEmptyTranscript    = errors.New("transcript has no participant messages")
	ErrNoJSON             = errors.New("no JSON object found")
	ErrMalformedOutcome   = errors.New("malformed outcome")
)
