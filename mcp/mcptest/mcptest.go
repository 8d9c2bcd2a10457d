// Package mcptest provides test doubles for exercising the mcp package
// without a real process boundary or network socket: an in-memory transport
// pair and a fake clock. Adapted from the shape of the teacher's
// server/data/testutil package (small, t.Helper()-annotated constructors)
// generalized from database fixture setup to protocol-level test plumbing.
package mcptest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/honganh1206/mcp-runtime/mcp"
)

// PipeTransport is an in-memory mcp.Transport: messages sent on one end of a
// NewPipe pair are delivered directly to the other end's message handler, with no
// wire encoding involved. Useful for driving a Client and Server against
// each other in a single test process.
type PipeTransport struct {
	mu    sync.Mutex
	state mcp.LifecycleState

	peer *PipeTransport

	messageHandler func(ctx context.Context, message *mcp.Message)
	errorHandler   func(error)
	closeHandler   func()
}

// NewPipe returns two PipeTransports wired to each other: messages Sent on
// a are delivered to b's message handler, and vice versa.
func NewPipe() (a, b *PipeTransport) {
	a = &PipeTransport{}
	b = &PipeTransport{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *PipeTransport) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = mcp.StateOperational
	return nil
}

func (p *PipeTransport) Send(ctx context.Context, message *mcp.Message) error {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	handler := peer.messageHandler
	peer.mu.Unlock()
	if handler != nil {
		handler(ctx, message)
	}
	return nil
}

func (p *PipeTransport) Close() error {
	p.mu.Lock()
	already := p.state == mcp.StateStopped
	p.state = mcp.StateStopped
	handler := p.closeHandler
	p.mu.Unlock()
	if !already && handler != nil {
		handler()
	}
	return nil
}

func (p *PipeTransport) SetMessageHandler(handler func(ctx context.Context, message *mcp.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageHandler = handler
}

func (p *PipeTransport) SetErrorHandler(handler func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorHandler = handler
}

func (p *PipeTransport) SetCloseHandler(handler func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeHandler = handler
}

func (p *PipeTransport) State() mcp.LifecycleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// FakeClock is a manually advanced time source for deterministic timeout
// tests, avoiding real sleeps.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFakeClock returns a clock starting at an arbitrary fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

// Now returns the clock's current instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that fires once Advance has moved the clock to or
// past now+d, mirroring time.After for code under test that accepts a clock
// abstraction.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters = append(c.waiters, clockWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d, firing any waiters whose deadline
// has passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// RequireNoError fails the test immediately if err is non-nil, mirroring
// the teacher's t.Fatalf-on-error helper pattern.
func RequireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
