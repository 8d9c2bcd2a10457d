package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// SSETransport implements the legacy HTTP+SSE transport (spec §5.2): a
// client opens one long-lived GET connection and receives an initial
// "endpoint" event naming the URL it must POST subsequent messages to, then
// a stream of "message" events carrying server-to-client traffic. Exactly
// one HTTP response is held open per session; POSTed messages are
// correlated back to that session by a query-string session id.
type SSETransport struct {
	baseTransport

	messagePath string

	mu      sync.RWMutex
	clients map[string]*sseClient
}

type sseClient struct {
	outbound chan []byte
	done     chan struct{}
}

// NewSSETransport builds a transport whose endpoint event advertises
// messagePath (e.g. "/mcp/message") as the POST target for client-to-server
// traffic.
func NewSSETransport(messagePath string) *SSETransport {
	return &SSETransport{
		messagePath: messagePath,
		clients:     make(map[string]*sseClient),
	}
}

func (t *SSETransport) Start(ctx context.Context) error {
	if err := t.transition(StateNew, StateInitializing); err != nil {
		return err
	}
	return t.transition(StateInitializing, StateOperational)
}

// Send broadcasts a message to every connected SSE session. The legacy
// transport has no per-request response routing of its own; correlation is
// left to the protocol engine's response-waiter map, keyed by message ID.
func (t *SSETransport) Send(ctx context.Context, message *Message) error {
	if t.current() != StateOperational {
		return fmt.Errorf("mcp: sse send while %s", t.current())
	}
	data, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.clients {
		select {
		case c.outbound <- data:
		default:
		}
	}
	return nil
}

func (t *SSETransport) Close() error {
	if err := t.transition(StateOperational, StateShuttingDown); err != nil {
		return nil
	}
	t.mu.Lock()
	for id, c := range t.clients {
		close(c.done)
		delete(t.clients, id)
	}
	t.mu.Unlock()
	t.forceState(StateStopped)
	t.onClose()
	return nil
}

// StreamHandler returns the http.HandlerFunc for the GET endpoint clients
// connect to for the lifetime of their session.
func (t *SSETransport) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sessionID := uuid.NewString()
		client := &sseClient{outbound: make(chan []byte, 64), done: make(chan struct{})}

		t.mu.Lock()
		t.clients[sessionID] = client
		t.mu.Unlock()
		defer func() {
			t.mu.Lock()
			delete(t.clients, sessionID)
			t.mu.Unlock()
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		endpoint := fmt.Sprintf("%s?sessionId=%s", t.messagePath, sessionID)
		fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-client.done:
				return
			case data := <-client.outbound:
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}

// MessageHandler returns the http.HandlerFunc for the POST endpoint named
// by each session's endpoint event. The decoded message is dispatched to
// the registered message handler; the HTTP response itself carries no
// payload. Responses arrive asynchronously as SSE events; Send broadcasts
// each one to every open SSE stream, not only the posting session's.
func (t *SSETransport) MessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sessionID := r.URL.Query().Get("sessionId")
		t.mu.RLock()
		_, known := t.clients[sessionID]
		t.mu.RUnlock()
		if sessionID == "" || !known {
			http.Error(w, "unknown or missing sessionId", http.StatusNotFound)
			return
		}

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		msg, err := DecodeMessage(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t.onMessage(r.Context(), msg)
		w.WriteHeader(http.StatusAccepted)
	}
}
