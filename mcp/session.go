package mcp

import (
	"errors"
	"sync"
)

// getStreamID is the reserved stream identifier for the single standalone
// GET-opened SSE stream a session may hold (spec's "_GET_stream"), distinct
// from the per-request streams POST responses are delivered on.
const getStreamID int64 = -1

// errGETStreamOpen is returned by openGETStream when a session already has
// a standalone GET stream open; the caller should answer 409 Conflict.
var errGETStreamOpen = errors.New("mcp: standalone GET stream already open for this session")

// httpSession tracks one Streamable-HTTP client's state: its stream
// accounting (so a request's response lands on the POST connection that
// is waiting for it, and unsolicited messages on the standalone GET
// stream) and whether it has completed initialize.
type httpSession struct {
	id          string
	initialized bool

	mu            sync.Mutex
	nextStreamID  int64
	getStreamOpen bool
	// requestStreams maps an outstanding request ID to the stream it
	// arrived on, so the response can be delivered to the right open
	// connection. Notifications carry no ID and are not routed by it.
	requestStreams map[string]int64
	// streamConns holds, per open stream, the channel its handler (the
	// POST for a request stream, the GET for getStreamID) is reading from.
	streamConns map[int64]chan *Message
}

func newHTTPSession(id string) *httpSession {
	return &httpSession{
		id:             id,
		requestStreams: make(map[string]int64),
		streamConns:    make(map[int64]chan *Message),
	}
}

// openGETStream registers the session's single standalone SSE stream. A
// second concurrent call fails with errGETStreamOpen so the caller can
// answer 409 Conflict, per the one-standalone-stream-per-session rule.
func (s *httpSession) openGETStream() (int64, chan *Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getStreamOpen {
		return 0, nil, errGETStreamOpen
	}
	s.getStreamOpen = true
	ch := make(chan *Message, 64)
	s.streamConns[getStreamID] = ch
	return getStreamID, ch, nil
}

// openRequestStream registers a new per-request stream, used to hold a POST
// response's connection open while its handler runs.
func (s *httpSession) openRequestStream() (int64, chan *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextStreamID
	s.nextStreamID++
	ch := make(chan *Message, 64)
	s.streamConns[id] = ch
	return id, ch
}

func (s *httpSession) closeStream(streamID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.streamConns[streamID]; ok {
		close(ch)
		delete(s.streamConns, streamID)
	}
	if streamID == getStreamID {
		s.getStreamOpen = false
	}
}

// bindRequest records that reqID's eventual response belongs on streamID,
// called when a POST carrying a request is itself kept open as the
// response channel (the common case: the per-request stream that
// openRequestStream opened for that POST's own HTTP response).
func (s *httpSession) bindRequest(reqID string, streamID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestStreams[reqID] = streamID
}

func (s *httpSession) unbindRequest(reqID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requestStreams, reqID)
}

// deliver routes a message to the stream its correlated request arrived
// on, if any is currently open, falling back to the session's standalone
// GET stream for unsolicited server-initiated messages (notifications with
// no bound request). It reports ok=false if nothing is listening.
func (s *httpSession) deliver(reqID string, m *Message) bool {
	s.mu.Lock()
	streamID, bound := s.requestStreams[reqID]
	if !bound {
		streamID = getStreamID
	}
	ch, ok := s.streamConns[streamID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- m:
		return true
	default:
		return false
	}
}

func (s *httpSession) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.streamConns {
		close(ch)
		delete(s.streamConns, id)
	}
}
