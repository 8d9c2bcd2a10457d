package mcp

import (
	"context"
	"fmt"
)

// Client is the host-side façade over Protocol: the initialization
// handshake, typed request helpers for every server method, and a
// notification-sink registry keyed by method (spec §4.10).
type Client struct {
	info       Implementation
	caps       ClientCapabilities
	protocol   *Protocol

	serverInfo   Implementation
	serverCaps   ServerCapabilities
	instructions string
}

// NewClient builds a Client that will advertise info/caps at Initialize.
func NewClient(info Implementation, caps ClientCapabilities) *Client {
	c := &Client{
		info:     info,
		caps:     caps,
		protocol: NewProtocol(ProtocolOptions{EnforceStrictCapabilities: true}),
	}
	c.protocol.SetLocalCapabilities(caps)
	return c
}

// Connect attaches the client to transport and starts it. Callers must
// still call Initialize before issuing any other request.
func (c *Client) Connect(ctx context.Context, transport Transport) error {
	return c.protocol.Connect(ctx, transport)
}

// Close shuts down the underlying transport.
func (c *Client) Close() error {
	return c.protocol.Close()
}

// Protocol exposes the underlying engine for advanced use (custom request
// handlers for server→client methods, direct OnError/OnClose wiring).
func (c *Client) Protocol() *Protocol { return c.protocol }

// ServerInfo and ServerCapabilities are populated after Initialize
// completes.
func (c *Client) ServerInfo() Implementation         { return c.serverInfo }
func (c *Client) ServerCapabilities() ServerCapabilities { return c.serverCaps }
func (c *Client) Instructions() string               { return c.instructions }

// Initialize performs the handshake: sends initialize with this client's
// info/capabilities, records the server's reply, then sends
// notifications/initialized (spec §4.9's handshake, driven from the
// client side).
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	result, err := Request[InitializeResult](ctx, c.protocol, string(MethodInitialize), InitializeParams{
		ProtocolVersion: LatestProtocolVersion,
		Capabilities:    c.caps,
		ClientInfo:      c.info,
	}, nil)
	if err != nil {
		return nil, err
	}
	c.serverInfo = result.ServerInfo
	c.serverCaps = result.Capabilities
	c.instructions = result.Instructions
	c.protocol.SetRemoteCapabilities(result.Capabilities)

	if err := c.protocol.Notify(string(NotificationInitialized), struct{}{}); err != nil {
		return nil, fmt.Errorf("mcp: send notifications/initialized: %w", err)
	}
	return &result, nil
}

// Ping issues a ping request, returning once the server replies.
func (c *Client) Ping(ctx context.Context) error {
	_, err := Request[struct{}](ctx, c.protocol, string(MethodPing), struct{}{}, nil)
	return err
}

type listToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListTools returns every tool the server advertises, paging internally
// until the server reports no further cursor.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	cursor := ""
	for {
		page, err := Request[listToolsResult](ctx, c.protocol, string(MethodToolsList), struct {
			Cursor string `json:"cursor,omitempty"`
		}{Cursor: cursor}, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes name with args (marshaled to JSON), optionally
// reporting progress via opts.OnProgress.
func (c *Client) CallTool(ctx context.Context, name string, args any, opts *RequestOptions) (*CallToolResult, error) {
	return requestPtr[CallToolResult](ctx, c.protocol, string(MethodToolsCall), struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments,omitempty"`
	}{Name: name, Arguments: args}, opts)
}

type listPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// ListPrompts returns every prompt the server advertises.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var all []Prompt
	cursor := ""
	for {
		page, err := Request[listPromptsResult](ctx, c.protocol, string(MethodPromptsList), struct {
			Cursor string `json:"cursor,omitempty"`
		}{Cursor: cursor}, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Prompts...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// GetPrompt resolves name with args.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*GetPromptResult, error) {
	return requestPtr[GetPromptResult](ctx, c.protocol, string(MethodPromptsGet), struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}{Name: name, Arguments: args}, nil)
}

type listResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ListResources returns every resource the server advertises.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var all []Resource
	cursor := ""
	for {
		page, err := Request[listResourcesResult](ctx, c.protocol, string(MethodResourcesList), struct {
			Cursor string `json:"cursor,omitempty"`
		}{Cursor: cursor}, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Resources...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// ReadResource fetches uri's contents.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	return requestPtr[ReadResourceResult](ctx, c.protocol, string(MethodResourcesRead), struct {
		URI string `json:"uri"`
	}{URI: uri}, nil)
}

// SubscribeResource registers interest in uri's updates; the server sends
// notifications/resources/updated when it changes.
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	_, err := Request[struct{}](ctx, c.protocol, string(MethodResourcesSubscribe), struct {
		URI string `json:"uri"`
	}{URI: uri}, nil)
	return err
}

// UnsubscribeResource withdraws a prior SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	_, err := Request[struct{}](ctx, c.protocol, string(MethodResourcesUnsubscribe), struct {
		URI string `json:"uri"`
	}{URI: uri}, nil)
	return err
}

// OnNotification registers handler for method, e.g.
// "notifications/tools/list_changed" or
// "notifications/resources/updated".
func (c *Client) OnNotification(method string, handler NotificationHandler) {
	c.protocol.SetNotificationHandler(method, handler)
}

// requestPtr is Request's pointer-returning twin, used by every typed
// wrapper above that hands back a result struct by pointer.
func requestPtr[R any](ctx context.Context, p *Protocol, method string, params any, opts *RequestOptions) (*R, error) {
	result, err := Request[R](ctx, p, method, params, opts)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
