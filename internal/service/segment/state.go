// Package segment provides utterance id generation and the lifecycle of one
// finalized utterance on its way through the dialogue service.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of an utterance.
type State int

const (
	// StateFinalized - Final transcript received, no dialogue request yet.
	StateFinalized State = iota
	// StateDispatched - Dialogue request sent, awaiting the response.
	StateDispatched
	// StateAnswered - Dialogue response (possibly absent) received.
	StateAnswered
	// StateDropped - Abandoned before a response arrived, e.g. session stopped.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateFinalized:
		return "FINALIZED"
	case StateDispatched:
		return "DISPATCHED"
	case StateAnswered:
		return "ANSWERED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (ANSWERED or DROPPED).
func (s State) IsTerminal() bool {
	return s == StateAnswered || s == StateDropped
}

// Errors for invalid state transitions.
var (
	ErrTurnClosed        = errors.New("utterance is closed")
	ErrAlreadyDispatched = errors.New("dialogue request already sent for this utterance")
	ErrNotDispatched     = errors.New("no dialogue request sent for this utterance")
)

// Lifecycle manages the state machine for a single utterance.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	FINALIZED → DISPATCHED → ANSWERED
//	    │           │
//	    └───────────┴── Drop() ──→ DROPPED
//
// Rules:
//   - FINALIZED: can dispatch (once)
//   - DISPATCHED: can be answered (once)
//   - ANSWERED, DROPPED: terminal, all transitions return errors
type Lifecycle struct {
	mu     sync.RWMutex
	turnId string
	state  State
}

// NewLifecycle creates a new utterance lifecycle in FINALIZED state.
func NewLifecycle(turnId string) *Lifecycle {
	return &Lifecycle{
		turnId: turnId,
		state:  StateFinalized,
	}
}

// TurnId returns the utterance ID.
func (l *Lifecycle) TurnId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.turnId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true if the utterance is in a terminal state.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Dispatch records the dialogue request being sent.
func (l *Lifecycle) Dispatch() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateFinalized:
		l.state = StateDispatched
		return nil
	case StateDispatched:
		return ErrAlreadyDispatched
	case StateAnswered, StateDropped:
		return ErrTurnClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Answer records the dialogue response arriving.
func (l *Lifecycle) Answer() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateDispatched:
		l.state = StateAnswered
		return nil
	case StateFinalized:
		return ErrNotDispatched
	case StateAnswered, StateDropped:
		return ErrTurnClosed
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Drop abandons the utterance.
// Returns true if the utterance was dropped, false if already in a terminal state.
func (l *Lifecycle) Drop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateDropped
	return true
}
