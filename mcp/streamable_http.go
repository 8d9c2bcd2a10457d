package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/honganh1206/mcp-runtime/logger"
)

// StreamableHTTPTransport implements the single-path Streamable-HTTP
// transport (spec §4.7, MCP spec 2025-06-18): POST for requests and
// notifications, GET to open an SSE stream for server-initiated traffic
// and resumed delivery, DELETE to terminate a session. Session state lives
// in Mcp-Session-Id; all session accounting is delegated to httpSession.
type StreamableHTTPTransport struct {
	baseTransport

	events EventStore

	mu       sync.RWMutex
	sessions map[string]*httpSession

	// AllowedOrigins, when non-empty, restricts accepted Origin headers as
	// DNS-rebinding protection; empty means no restriction.
	AllowedOrigins []string
}

// NewStreamableHTTPTransport builds a transport backed by the given
// EventStore for resumability. Pass NewMemoryEventStore(0) for an
// unbounded in-process store.
func NewStreamableHTTPTransport(events EventStore) *StreamableHTTPTransport {
	return &StreamableHTTPTransport{
		events:   events,
		sessions: make(map[string]*httpSession),
	}
}

func (t *StreamableHTTPTransport) Start(ctx context.Context) error {
	if err := t.transition(StateNew, StateInitializing); err != nil {
		return err
	}
	return t.transition(StateInitializing, StateOperational)
}

func (t *StreamableHTTPTransport) Close() error {
	if err := t.transition(StateOperational, StateShuttingDown); err != nil {
		return nil
	}
	t.mu.Lock()
	for id, s := range t.sessions {
		s.closeAll()
		delete(t.sessions, id)
	}
	t.mu.Unlock()
	t.forceState(StateStopped)
	t.onClose()
	return nil
}

// Send offers a server-originated message to every session. A session
// whose request stream is bound to the message's ID receives it there;
// otherwise (notifications and unbound IDs) it goes to that session's
// standalone GET stream. Sessions with neither stream open drop it. Send
// itself records nothing in the event store (the GET handler records what
// it writes); SendToSession targets one session and records the message
// first.
func (t *StreamableHTTPTransport) Send(ctx context.Context, message *Message) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		s.deliver(message.ID().String(), message)
	}
	return nil
}

// SendToSession routes message to a specific session's bound stream,
// recording it in the event store first so a later reconnect can replay
// it.
func (t *StreamableHTTPTransport) SendToSession(sessionID string, message *Message) error {
	t.mu.RLock()
	s, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mcp: unknown session %q", sessionID)
	}
	s.mu.Lock()
	streamID, bound := s.requestStreams[message.ID().String()]
	if !bound {
		streamID = getStreamID
	}
	s.mu.Unlock()
	if _, err := t.events.Append(sessionID, streamID, message); err != nil {
		return err
	}
	s.deliver(message.ID().String(), message)
	return nil
}

// Router returns a *mux.Router serving POST/GET/DELETE on path for the
// Streamable-HTTP transport, suitable for mounting into a larger
// application's own router.
func (t *StreamableHTTPTransport) Router(path string) *mux.Router {
	r := mux.NewRouter()
	r.Use(t.originMiddleware)
	r.HandleFunc(path, t.handlePost).Methods(http.MethodPost)
	r.HandleFunc(path, t.handleGet).Methods(http.MethodGet)
	r.HandleFunc(path, t.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc(path, t.handleOptions).Methods(http.MethodOptions)
	return r
}

func (t *StreamableHTTPTransport) originMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setStreamableCORSHeaders(w)
		if len(t.AllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			allowed := origin == ""
			for _, o := range t.AllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func setStreamableCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
}

func (t *StreamableHTTPTransport) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (t *StreamableHTTPTransport) validateProtocolVersion(w http.ResponseWriter, r *http.Request) bool {
	version := r.Header.Get("MCP-Protocol-Version")
	if version == "" {
		return true // absent header: assume the oldest Streamable-HTTP version
	}
	for _, v := range SupportedProtocolVersions {
		if v == version {
			return true
		}
	}
	http.Error(w, "unsupported MCP-Protocol-Version", http.StatusBadRequest)
	return false
}

func (t *StreamableHTTPTransport) lookupSession(w http.ResponseWriter, r *http.Request, required bool) (*httpSession, bool) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		if required {
			http.Error(w, "missing Mcp-Session-Id header", http.StatusBadRequest)
			return nil, false
		}
		return nil, true
	}
	t.mu.RLock()
	s, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok {
		http.Error(w, "session not found or terminated", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func (t *StreamableHTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
		http.Error(w, "Accept header must include both application/json and text/event-stream", http.StatusNotAcceptable)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	if !t.validateProtocolVersion(w, r) {
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

	switch msg.Kind {
	case KindNotification:
		t.onMessage(r.Context(), msg)
		w.WriteHeader(http.StatusAccepted)
		return
	case KindResponse, KindError:
		t.onMessage(r.Context(), msg)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	isInit := msg.Kind == KindRequest && msg.Req.Method == string(MethodInitialize)

	session, ok := t.lookupSession(w, r, !isInit)
	if !ok {
		return
	}
	if isInit {
		session = newHTTPSession(uuid.NewString())
		t.mu.Lock()
		t.sessions[session.id] = session
		t.mu.Unlock()
	}

	reqID := msg.ID().String()
	streamID, waiter := session.openRequestStream()
	session.bindRequest(reqID, streamID)
	defer session.unbindRequest(reqID)
	defer session.closeStream(streamID)

	t.onMessage(r.Context(), msg)

	resp := <-waiter

	if isInit {
		w.Header().Set("Mcp-Session-Id", session.id)
		session.initialized = true
		logger.Debug("mcp: streamable-http session initialized: %s", session.id)
	} else {
		w.Header().Set("Mcp-Session-Id", session.id)
	}

	data, err := EncodeMessage(resp)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (t *StreamableHTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if !strings.Contains(accept, "text/event-stream") {
		http.Error(w, "Accept header must include text/event-stream", http.StatusNotAcceptable)
		return
	}
	if !t.validateProtocolVersion(w, r) {
		return
	}
	session, ok := t.lookupSession(w, r, true)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	streamID, ch, err := session.openGETStream()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer session.closeStream(streamID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Mcp-Session-Id", session.id)

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		replayStream, _ := strconv.ParseInt(strings.SplitN(lastID, "_", 2)[0], 10, 64)
		events, err := t.events.ReplayAfter(session.id, replayStream, lastID)
		if err == nil {
			for _, e := range events {
				writeSSEEvent(w, e.ID, e.Message)
			}
			flusher.Flush()
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			id, _ := t.events.Append(session.id, streamID, msg)
			writeSSEEvent(w, id, msg)
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, id string, msg *Message) {
	data, err := EncodeMessage(msg)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", id, data)
}

func (t *StreamableHTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := t.lookupSession(w, r, true)
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.sessions, session.id)
	t.mu.Unlock()
	session.closeAll()
	if store, ok := t.events.(*MemoryEventStore); ok {
		store.forget(session.id)
	}
	logger.Debug("mcp: streamable-http session terminated: %s", session.id)
	w.WriteHeader(http.StatusNoContent)
}
