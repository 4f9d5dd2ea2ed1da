// Package turn holds the per-conversation turn state machine.
package turn

import (
	"errors"
	"sync"
)

// State is the lifecycle state of a conversation's current turn.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingUpload State = "awaiting_upload"
	StateStreaming      State = "streaming"
)

var (
	ErrTurnInProgress   = errors.New("turn in progress")
	ErrUploadInProgress = errors.New("upload in progress")
)

// Guard is the single authority on a conversation's State. A new turn or
// upload can only begin from StateIdle, so at most one is ever active.
type Guard struct {
	mu       sync.Mutex
	state    State
	watchers []func(State)
}

// NewGuard returns a Guard in StateIdle.
func NewGuard() *Guard {
	return &Guard{state: StateIdle}
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Begin moves the guard from StateIdle to next. It fails without changing
// anything when another turn or upload is active.
func (g *Guard) Begin(next State) error {
	g.mu.Lock()
	switch g.state {
	case StateStreaming:
		g.mu.Unlock()
		return ErrTurnInProgress
	case StateAwaitingUpload:
		g.mu.Unlock()
		return ErrUploadInProgress
	}
	g.state = next
	watchers := g.watchers
	g.mu.Unlock()

	notify(watchers, next)
	return nil
}

// End returns the guard to StateIdle.
func (g *Guard) End() {
	g.mu.Lock()
	if g.state == StateIdle {
		g.mu.Unlock()
		return
	}
	g.state = StateIdle
	watchers := g.watchers
	g.mu.Unlock()

	notify(watchers, StateIdle)
}

// Watch registers fn to be called after every state change.
func (g *Guard) Watch(fn func(State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.watchers = append(g.watchers[:len(g.watchers):len(g.watchers)], fn)
}

// IsValidation reports whether err is a turn-state rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrTurnInProgress) || errors.Is(err, ErrUploadInProgress)
}

func notify(watchers []func(State), s State) {
	for _, fn := range watchers {
		fn(s)
	}
}
