package mcp

import "sync/atomic"

// LifecycleState is the transport connection state (spec §4.4). Every
// transport embeds lifecycle and drives it through Start/Close; callers
// observe it via Transport.State for diagnostics and tests.
type LifecycleState int32

const (
	StateNew LifecycleState = iota
	StateInitializing
	StateOperational
	StateShuttingDown
	StateStopped
	StateInitializationFailed
	StateShutdownFailed
)

func (s LifecycleState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitializing:
		return "initializing"
	case StateOperational:
		return "operational"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateInitializationFailed:
		return "initialization_failed"
	case StateShutdownFailed:
		return "shutdown_failed"
	default:
		return "unknown"
	}
}

// allowedTransitions enumerates the legal edges of the state machine. Any
// transition not listed here is rejected with InvalidTransitionError.
var allowedTransitions = map[LifecycleState][]LifecycleState{
	StateNew:           {StateInitializing},
	StateInitializing:  {StateOperational, StateInitializationFailed},
	StateOperational:   {StateShuttingDown},
	StateShuttingDown:  {StateStopped, StateShutdownFailed},
	StateStopped:       {},
	StateInitializationFailed: {},
	StateShutdownFailed:       {},
}

// lifecycle is embedded by every transport to give it a shared,
// compare-and-exchange-guarded state machine. It is zero-value-ready in
// state StateNew.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) current() LifecycleState {
	return LifecycleState(l.state.Load())
}

// transition attempts to move from `from` to `to`, failing atomically (via
// CAS) if the current state is not `from`, or if the edge is not in
// allowedTransitions.
func (l *lifecycle) transition(from, to LifecycleState) error {
	allowed := false
	for _, s := range allowedTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return &InvalidTransitionError{From: from, To: to}
	}
	if !l.state.CompareAndSwap(int32(from), int32(to)) {
		return &InvalidTransitionError{From: LifecycleState(l.state.Load()), To: to}
	}
	return nil
}

// forceState unconditionally sets the state, bypassing allowedTransitions.
// Transports use it to reach Stopped or ShutdownFailed from whatever state
// they are in when the connection ends (e.g. a reader hitting EOF), where
// the precise prior state doesn't matter to the caller.
func (l *lifecycle) forceState(to LifecycleState) {
	l.state.Store(int32(to))
}
