package segment

import (
	"errors"
	"sync"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("s-turn-1")

	if lc.State() != StateFinalized {
		t.Errorf("expected StateFinalized, got %v", lc.State())
	}
	if lc.TurnId() != "s-turn-1" {
		t.Errorf("expected s-turn-1, got %v", lc.TurnId())
	}
	if lc.IsClosed() {
		t.Error("expected IsClosed to be false")
	}
}

func TestLifecycle_DispatchThenAnswer(t *testing.T) {
	lc := NewLifecycle("s-turn-1")

	if err := lc.Dispatch(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateDispatched {
		t.Errorf("expected StateDispatched, got %v", lc.State())
	}

	if err := lc.Answer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateAnswered {
		t.Errorf("expected StateAnswered, got %v", lc.State())
	}
	if !lc.IsClosed() {
		t.Error("expected IsClosed after answer")
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Lifecycle)
		action   func(*Lifecycle) error
		expected error
	}{
		{
			name:     "answer before dispatch",
			setup:    func(*Lifecycle) {},
			action:   (*Lifecycle).Answer,
			expected: ErrNotDispatched,
		},
		{
			name:     "dispatch twice",
			setup:    func(l *Lifecycle) { l.Dispatch() },
			action:   (*Lifecycle).Dispatch,
			expected: ErrAlreadyDispatched,
		},
		{
			name:     "answer twice",
			setup:    func(l *Lifecycle) { l.Dispatch(); l.Answer() },
			action:   (*Lifecycle).Answer,
			expected: ErrTurnClosed,
		},
		{
			name:     "answer after drop",
			setup:    func(l *Lifecycle) { l.Dispatch(); l.Drop() },
			action:   (*Lifecycle).Answer,
			expected: ErrTurnClosed,
		},
		{
			name:     "dispatch after drop",
			setup:    func(l *Lifecycle) { l.Drop() },
			action:   (*Lifecycle).Dispatch,
			expected: ErrTurnClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle("s-turn-1")
			tt.setup(lc)
			if err := tt.action(lc); !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestLifecycle_Drop(t *testing.T) {
	lc := NewLifecycle("s-turn-1")
	lc.Dispatch()

	if !lc.Drop() {
		t.Error("expected first Drop to succeed")
	}
	if lc.State() != StateDropped {
		t.Errorf("expected StateDropped, got %v", lc.State())
	}
	if lc.Drop() {
		t.Error("expected second Drop to report already terminal")
	}
}

func TestLifecycle_DropAfterAnswerIsNoop(t *testing.T) {
	lc := NewLifecycle("s-turn-1")
	lc.Dispatch()
	lc.Answer()

	if lc.Drop() {
		t.Error("expected Drop to fail on answered utterance")
	}
	if lc.State() != StateAnswered {
		t.Errorf("expected StateAnswered, got %v", lc.State())
	}
}

func TestLifecycle_ConcurrentAnswer(t *testing.T) {
	lc := NewLifecycle("s-turn-1")
	lc.Dispatch()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lc.Answer() == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly 1 successful answer, got %d", successes)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateFinalized, "FINALIZED"},
		{StateDispatched, "DISPATCHED"},
		{StateAnswered, "ANSWERED"},
		{StateDropped, "DROPPED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateFinalized, false},
		{StateDispatched, false},
		{StateAnswered, true},
		{StateDropped, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("expected %v, got %v", tt.terminal, got)
			}
		})
	}
}
