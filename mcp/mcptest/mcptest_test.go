package mcptest

import (
	"context"
	"testing"
	"time"

	"github.com/honganh1206/mcp-runtime/mcp"
)

func TestPipeTransportDeliversToPeer(t *testing.T) {
	a, b := NewPipe()
	RequireNoError(t, a.Start(context.Background()))
	RequireNoError(t, b.Start(context.Background()))

	received := make(chan *mcp.Message, 1)
	b.SetMessageHandler(func(ctx context.Context, m *mcp.Message) {
		received <- m
	})

	notif := &mcp.Message{Kind: mcp.KindNotification, Notif: &mcp.Notification{Method: "ping"}}
	RequireNoError(t, a.Send(context.Background(), notif))

	select {
	case m := <-received:
		if m.Notif.Method != "ping" {
			t.Errorf("expected method %q, got %q", "ping", m.Notif.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("peer never received the message")
	}
}

func TestPipeTransportCloseIsIdempotent(t *testing.T) {
	a, _ := NewPipe()
	calls := 0
	a.SetCloseHandler(func() { calls++ })

	RequireNoError(t, a.Close())
	RequireNoError(t, a.Close())

	if calls != 1 {
		t.Errorf("expected close handler called once, got %d", calls)
	}
	if a.State() != mcp.StateStopped {
		t.Errorf("expected state %v, got %v", mcp.StateStopped, a.State())
	}
}

func TestFakeClockAdvanceFiresWaiters(t *testing.T) {
	clock := NewFakeClock()
	ch := clock.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("waiter fired before the clock advanced")
	default:
	}

	clock.Advance(3 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired before its deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("waiter never fired after the clock passed its deadline")
	}
}
