package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestStreamableHTTPTransport() (*StreamableHTTPTransport, *httptest.Server) {
	transport := NewStreamableHTTPTransport(NewMemoryEventStore(0))
	transport.SetMessageHandler(func(ctx context.Context, m *Message) {})
	srv := httptest.NewServer(transport.Router("/mcp"))
	return transport, srv
}

func TestHandlePostRejectsMissingEventStreamAccept(t *testing.T) {
	_, srv := newTestStreamableHTTPTransport()
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 406 {
		t.Errorf("got status %d, want 406 when Accept omits text/event-stream", resp.StatusCode)
	}
}

func TestHandlePostRejectsNonJSONContentType(t *testing.T) {
	_, srv := newTestStreamableHTTPTransport()
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/mcp", strings.NewReader(`{}`))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "text/plain")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 415 {
		t.Errorf("got status %d, want 415 for a non-JSON Content-Type", resp.StatusCode)
	}
}

func TestHandleGetRejectsSecondConcurrentStandaloneStream(t *testing.T) {
	transport, srv := newTestStreamableHTTPTransport()
	defer srv.Close()

	session := newHTTPSession("sess-get-test")
	transport.mu.Lock()
	transport.sessions[session.id] = session
	transport.mu.Unlock()

	streamID, _, err := session.openGETStream()
	if err != nil {
		t.Fatalf("openGETStream: %v", err)
	}
	defer session.closeStream(streamID)

	req, _ := http.NewRequest("GET", srv.URL+"/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", session.id)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 409 {
		t.Errorf("got status %d, want 409 when a standalone GET stream is already open", resp.StatusCode)
	}
}

func TestHandleDeleteTerminatesSession(t *testing.T) {
	transport, srv := newTestStreamableHTTPTransport()
	defer srv.Close()

	session := newHTTPSession("sess-delete-test")
	transport.mu.Lock()
	transport.sessions[session.id] = session
	transport.mu.Unlock()

	req, _ := http.NewRequest("DELETE", srv.URL+"/mcp", nil)
	req.Header.Set("Mcp-Session-Id", session.id)

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 204 {
		t.Errorf("got status %d, want 204", resp.StatusCode)
	}

	transport.mu.RLock()
	_, stillThere := transport.sessions[session.id]
	transport.mu.RUnlock()
	if stillThere {
		t.Error("expected the session to be removed after DELETE")
	}
}
