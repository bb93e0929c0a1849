package dialogue

import "sync"

// StopToken is a cooperative cancellation signal checked between turns. Unlike a
// context it never aborts a generation call already in flight.
type StopToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopToken returns an unsignalled token.
func NewStopToken() *StopToken {
	return &StopToken{ch: make(chan struct{})}
}

// Stop signals the token. Safe to call more than once.
func (t *StopToken) Stop() {
	t.once.Do(func() { close(t.ch) })
}

// Stopped reports whether Stop was called.
func (t *StopToken) Stopped() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done is closed when the token is signalled.
func (t *StopToken) Done() <-chan struct{} {
	return t.ch
}
