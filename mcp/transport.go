package mcp

import "context"

// Transport is the pluggable channel a Protocol speaks JSON-RPC messages
// over (spec §4.3). Stdio, SSE, and Streamable-HTTP each provide one.
//
// All three handlers may be set before or after Start; a transport must
// buffer nothing between Start and the first SetMessageHandler call other
// than what it would buffer anyway while waiting for bytes off the wire.
type Transport interface {
	// Start begins reading from the underlying channel, driving the
	// lifecycle from New to Operational (or InitializationFailed). It must
	// not block past the point where reads have actually started.
	Start(ctx context.Context) error

	// Send writes a single message out. It must be safe to call
	// concurrently with itself and with Start's background reads.
	Send(ctx context.Context, message *Message) error

	// Close drives the lifecycle through ShuttingDown to Stopped (or
	// ShutdownFailed), releasing any resources Start acquired. Close must
	// be idempotent.
	Close() error

	// SetMessageHandler registers the callback invoked for every message
	// successfully decoded off the channel.
	SetMessageHandler(handler func(ctx context.Context, message *Message))

	// SetErrorHandler registers the callback invoked for transport-level
	// errors that don't correspond to a single message (e.g. a broken
	// pipe, or an unrecoverable decode failure).
	SetErrorHandler(handler func(error))

	// SetCloseHandler registers the callback invoked once Close completes,
	// whether called explicitly or triggered by the peer hanging up.
	SetCloseHandler(handler func())

	// State reports the current lifecycle state, chiefly for diagnostics
	// and tests.
	State() LifecycleState
}

// baseTransport holds the handler set and lifecycle state shared by every
// Transport implementation, so each concrete transport only has to manage
// its own I/O plumbing.
type baseTransport struct {
	lifecycle

	messageHandler func(ctx context.Context, message *Message)
	errorHandler   func(error)
	closeHandler   func()
}

func (t *baseTransport) SetMessageHandler(handler func(ctx context.Context, message *Message)) {
	t.messageHandler = handler
}

func (t *baseTransport) SetErrorHandler(handler func(error)) {
	t.errorHandler = handler
}

func (t *baseTransport) SetCloseHandler(handler func()) {
	t.closeHandler = handler
}

func (t *baseTransport) State() LifecycleState {
	return t.current()
}

func (t *baseTransport) onMessage(ctx context.Context, m *Message) {
	if t.messageHandler != nil {
		t.messageHandler(ctx, m)
	}
}

func (t *baseTransport) onError(err error) {
	if t.errorHandler != nil {
		t.errorHandler(err)
	}
}

func (t *baseTransport) onClose() {
	if t.closeHandler != nil {
		t.closeHandler()
	}
}
