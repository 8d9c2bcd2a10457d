package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// StreamableHTTPClientTransport is the client (host) side of the
// single-path Streamable-HTTP transport (spec §4.7): every outbound
// message is a POST to url, and the response is read either as one JSON
// body or as an SSE stream of messages, whichever the server chose to
// send. It does not open a standalone GET stream; callers that need
// unsolicited server-to-client traffic outside of a request/response
// should layer that on separately.
type StreamableHTTPClientTransport struct {
	baseTransport

	url    string
	client *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewStreamableHTTPClientTransport builds a client transport posting to
// url. httpClient may be nil, in which case http.DefaultClient is used.
func NewStreamableHTTPClientTransport(url string, httpClient *http.Client) *StreamableHTTPClientTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StreamableHTTPClientTransport{url: url, client: httpClient}
}

func (t *StreamableHTTPClientTransport) Start(ctx context.Context) error {
	if err := t.transition(StateNew, StateInitializing); err != nil {
		return err
	}
	return t.transition(StateInitializing, StateOperational)
}

// Send POSTs message and dispatches whatever the server replies with
// (one JSON message, an SSE stream of messages, or 202 Accepted with no
// body for notifications/responses) to the message handler.
func (t *StreamableHTTPClientTransport) Send(ctx context.Context, message *Message) error {
	data, err := EncodeMessage(message)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.onError(err)
		return err
	}
	defer resp.Body.Close()

	if id := resp.Header.Get("Mcp-Session-Id"); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("mcp: streamable-http POST failed: %s", resp.Status)
		t.onError(err)
		return err
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/event-stream") {
		return t.consumeSSE(ctx, resp)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return err
	}
	msg, err := DecodeMessage(raw)
	if err != nil {
		return err
	}
	t.onMessage(ctx, msg)
	return nil
}

func (t *StreamableHTTPClientTransport) consumeSSE(ctx context.Context, resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		msg, err := DecodeMessage([]byte(payload))
		if err != nil {
			continue
		}
		t.onMessage(ctx, msg)
	}
	return scanner.Err()
}

// Close sends DELETE to terminate the session, if one was established.
func (t *StreamableHTTPClientTransport) Close() error {
	if err := t.transition(StateOperational, StateShuttingDown); err != nil {
		if t.current() == StateStopped {
			return nil
		}
		t.forceState(StateStopped)
		t.onClose()
		return nil
	}
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()
	if sessionID != "" {
		req, err := http.NewRequest(http.MethodDelete, t.url, nil)
		if err == nil {
			req.Header.Set("Mcp-Session-Id", sessionID)
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}
	t.forceState(StateStopped)
	t.onClose()
	return nil
}
