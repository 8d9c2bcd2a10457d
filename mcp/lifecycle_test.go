package mcp

import "testing"

func TestLifecycleAllowedTransition(t *testing.T) {
	var l lifecycle
	if l.current() != StateNew {
		t.Fatalf("zero-value lifecycle should start at StateNew, got %s", l.current())
	}
	if err := l.transition(StateNew, StateInitializing); err != nil {
		t.Fatalf("New -> Initializing: %v", err)
	}
	if err := l.transition(StateInitializing, StateOperational); err != nil {
		t.Fatalf("Initializing -> Operational: %v", err)
	}
	if l.current() != StateOperational {
		t.Errorf("got %s, want %s", l.current(), StateOperational)
	}
}

func TestLifecycleRejectsDisallowedTransition(t *testing.T) {
	var l lifecycle
	if err := l.transition(StateNew, StateOperational); err == nil {
		t.Fatal("expected New -> Operational to be rejected; it must go through Initializing")
	}
}

func TestLifecycleTransitionFailsIfCurrentStateChanged(t *testing.T) {
	var l lifecycle
	l.forceState(StateOperational)
	// from says New, but the actual state is Operational: CAS must fail.
	if err := l.transition(StateNew, StateInitializing); err == nil {
		t.Fatal("expected the transition to fail when the current state doesn't match `from`")
	}
}

func TestLifecycleStateStringsAreDistinct(t *testing.T) {
	states := []LifecycleState{
		StateNew, StateInitializing, StateOperational, StateShuttingDown,
		StateStopped, StateInitializationFailed, StateShutdownFailed,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "" || str == "unknown" {
			t.Errorf("state %d stringified to %q", s, str)
		}
		if seen[str] {
			t.Errorf("duplicate state string %q", str)
		}
		seen[str] = true
	}
}
