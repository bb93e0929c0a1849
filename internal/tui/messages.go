package tui

import (
	"github.com/mark3labs/roundtable/internal/archive"
	"github.com/mark3labs/roundtable/internal/dialogue"
)

// EventMsg carries a controller event into the update loop.
type EventMsg struct {
	Event dialogue.Event
}

// OutcomeMsg reports the end of a synthesis request.
type OutcomeMsg struct {
	Outcome dialogue.Outcome
	Err     error
}

// SavedMsg reports the end of a save request.
type SavedMsg struct {
	Entry archive.Entry
	Err   error
}
