package mcp

import "testing"

func TestHTTPSessionOpenGETStreamRejectsSecondConcurrentCall(t *testing.T) {
	s := newHTTPSession("sess-1")

	streamID, _, err := s.openGETStream()
	if err != nil {
		t.Fatalf("first openGETStream failed: %v", err)
	}
	if streamID != getStreamID {
		t.Errorf("got stream id %d, want %d", streamID, getStreamID)
	}

	if _, _, err := s.openGETStream(); err != errGETStreamOpen {
		t.Errorf("second concurrent openGETStream: got err %v, want %v", err, errGETStreamOpen)
	}

	s.closeStream(streamID)

	if _, _, err := s.openGETStream(); err != nil {
		t.Errorf("openGETStream after close: got err %v, want nil", err)
	}
}

func TestHTTPSessionOpenRequestStreamIDsAreSequentialAndDistinctFromGETStream(t *testing.T) {
	s := newHTTPSession("sess-1")

	id0, _ := s.openRequestStream()
	id1, _ := s.openRequestStream()
	if id0 == id1 {
		t.Errorf("expected distinct request stream ids, got %d twice", id0)
	}
	if id1 != id0+1 {
		t.Errorf("expected sequential request stream ids, got %d then %d", id0, id1)
	}
	if id0 == getStreamID || id1 == getStreamID {
		t.Errorf("request stream ids must never collide with the reserved GET stream id %d", getStreamID)
	}
}

func TestHTTPSessionDeliverFallsBackToGETStreamForUnboundMessages(t *testing.T) {
	s := newHTTPSession("sess-1")
	_, ch, err := s.openGETStream()
	if err != nil {
		t.Fatalf("openGETStream: %v", err)
	}

	msg := &Message{Kind: KindNotification, Notif: &Notification{Method: "notifications/tools/list_changed"}}
	if !s.deliver("unbound-request-id", msg) {
		t.Fatal("expected deliver to succeed via the GET stream fallback")
	}

	select {
	case got := <-ch:
		if got != msg {
			t.Errorf("got different message than delivered")
		}
	default:
		t.Fatal("expected the GET stream channel to receive the message")
	}
}

func TestHTTPSessionDeliverRoutesBoundRequestsToTheirOwnStream(t *testing.T) {
	s := newHTTPSession("sess-1")
	streamID, ch := s.openRequestStream()
	s.bindRequest("req-1", streamID)

	msg := &Message{Kind: KindResponse, Resp: &Response{ID: NewRequestIDString("req-1")}}
	if !s.deliver("req-1", msg) {
		t.Fatal("expected deliver to succeed on the bound request stream")
	}
	select {
	case got := <-ch:
		if got != msg {
			t.Error("got different message than delivered")
		}
	default:
		t.Fatal("expected the request's own stream channel to receive the message")
	}
}

func TestHTTPSessionCloseAllClosesEveryStream(t *testing.T) {
	s := newHTTPSession("sess-1")
	_, getCh, _ := s.openGETStream()
	_, reqCh := s.openRequestStream()

	s.closeAll()

	if _, ok := <-getCh; ok {
		t.Error("expected GET stream channel to be closed")
	}
	if _, ok := <-reqCh; ok {
		t.Error("expected request stream channel to be closed")
	}
}
