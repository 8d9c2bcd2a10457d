package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cskr/pubsub"

	"github.com/honganh1206/mcp-runtime/logger"
)

// Server wires a Protocol engine to a Registry and answers the
// initialization handshake (spec §4.9's "Initialization handshake"). It
// owns the session loop that forwards registry mutation events to the
// connected transport as notifications.
type Server struct {
	info         Implementation
	capabilities ServerCapabilities
	instructions string

	protocol *Protocol
	registry *Registry
	bus      *pubsub.PubSub

	clientInfo   Implementation
	clientCaps   ClientCapabilities
	initialized  bool
}

// NewServer builds a Server advertising info/capabilities/instructions,
// with its feature registry and protocol engine ready to Connect.
func NewServer(info Implementation, capabilities ServerCapabilities, instructions string) *Server {
	bus := pubsub.New(16)
	s := &Server{
		info:         info,
		capabilities: capabilities,
		instructions: instructions,
		protocol:     NewProtocol(ProtocolOptions{}),
		registry:     NewRegistry(&capabilities, bus),
		bus:          bus,
	}
	s.protocol.SetLocalCapabilities(capabilities)
	s.registerHandlers()
	return s
}

// Registry exposes the feature catalogue for AddTool/AddPrompt/
// AddResource calls made before or after Connect.
func (s *Server) Registry() *Registry { return s.registry }

// Protocol exposes the underlying engine, e.g. for tests asserting on
// capability gating directly.
func (s *Server) Protocol() *Protocol { return s.protocol }

func (s *Server) registerHandlers() {
	must := func(err error) {
		if err != nil {
			panic(err) // programmer error: server's own capabilities don't match its own handlers
		}
	}

	must(s.protocol.SetRequestHandler(string(MethodInitialize), s.handleInitialize))
	if s.capabilities.Tools != nil {
		must(s.protocol.SetRequestHandler(string(MethodToolsList), s.handleToolsList))
		must(s.protocol.SetRequestHandler(string(MethodToolsCall), s.handleToolsCall))
	}
	if s.capabilities.Prompts != nil {
		must(s.protocol.SetRequestHandler(string(MethodPromptsList), s.handlePromptsList))
		must(s.protocol.SetRequestHandler(string(MethodPromptsGet), s.handlePromptsGet))
	}
	if s.capabilities.Resources != nil {
		must(s.protocol.SetRequestHandler(string(MethodResourcesList), s.handleResourcesList))
		must(s.protocol.SetRequestHandler(string(MethodResourcesRead), s.handleResourcesRead))
		must(s.protocol.SetRequestHandler(string(MethodResourcesSubscribe), s.handleResourcesSubscribe))
		must(s.protocol.SetRequestHandler(string(MethodResourcesUnsubscribe), s.handleResourcesUnsubscribe))
	}
	s.protocol.SetNotificationHandler(string(NotificationInitialized), s.handleInitialized)
}

func (s *Server) handleInitialize(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed initialize params: " + err.Error()}
	}
	s.clientInfo = p.ClientInfo
	s.clientCaps = p.Capabilities
	s.protocol.SetRemoteCapabilities(p.Capabilities)

	negotiated := NegotiateProtocolVersion(p.ProtocolVersion)
	return InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) error {
	s.initialized = true
	logger.Debug("mcp: server initialized by client %s/%s", s.clientInfo.Name, s.clientInfo.Version)
	return nil
}

func (s *Server) handleToolsList(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)
	tools, next := s.registry.ListTools(p.Cursor)
	return struct {
		Tools      []Tool `json:"tools"`
		NextCursor string `json:"nextCursor,omitempty"`
	}{Tools: tools, NextCursor: next}, nil
}

func (s *Server) handleToolsCall(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed tools/call params: " + err.Error()}
	}
	return s.registry.CallTool(extra, p.Name, p.Arguments)
}

func (s *Server) handlePromptsList(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)
	prompts, next := s.registry.ListPrompts(p.Cursor)
	return struct {
		Prompts    []Prompt `json:"prompts"`
		NextCursor string   `json:"nextCursor,omitempty"`
	}{Prompts: prompts, NextCursor: next}, nil
}

func (s *Server) handlePromptsGet(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed prompts/get params: " + err.Error()}
	}
	return s.registry.GetPrompt(extra, p.Name, p.Arguments)
}

func (s *Server) handleResourcesList(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)
	resources, next := s.registry.ListResources(p.Cursor)
	return struct {
		Resources  []Resource `json:"resources"`
		NextCursor string     `json:"nextCursor,omitempty"`
	}{Resources: resources, NextCursor: next}, nil
}

func (s *Server) handleResourcesRead(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed resources/read params: " + err.Error()}
	}
	return s.registry.ReadResource(extra, p.URI)
}

func (s *Server) handleResourcesSubscribe(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed resources/subscribe params: " + err.Error()}
	}
	// The connected peer is the subscriber: one id per protocol engine, so a
	// later unsubscribe from the same peer matches it.
	subscriberID := fmt.Sprintf("%p", s.protocol)
	s.registry.Subscribe(p.URI, subscriberID)
	return struct{}{}, nil
}

func (s *Server) handleResourcesUnsubscribe(extra RequestHandlerExtra, params json.RawMessage) (any, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "malformed resources/unsubscribe params: " + err.Error()}
	}
	subscriberID := fmt.Sprintf("%p", s.protocol)
	s.registry.Unsubscribe(p.URI, subscriberID)
	return struct{}{}, nil
}

// Connect attaches the server's protocol engine to transport and starts
// the session loop that forwards registry mutations as notifications.
func (s *Server) Connect(ctx context.Context, transport Transport) error {
	if err := s.protocol.Connect(ctx, transport); err != nil {
		return err
	}
	go s.sessionLoop(ctx)
	return nil
}

func (s *Server) sessionLoop(ctx context.Context) {
	tools, prompts, resources, updated := s.registry.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tools:
			if !ok {
				return
			}
			if err := s.protocol.Notify(string(NotificationToolsListChanged), struct{}{}); err != nil {
				logger.Warning("mcp: failed to notify tools list_changed: %v", err)
			}
		case _, ok := <-prompts:
			if !ok {
				return
			}
			if err := s.protocol.Notify(string(NotificationPromptsListChanged), struct{}{}); err != nil {
				logger.Warning("mcp: failed to notify prompts list_changed: %v", err)
			}
		case _, ok := <-resources:
			if !ok {
				return
			}
			if err := s.protocol.Notify(string(NotificationResourcesListChanged), struct{}{}); err != nil {
				logger.Warning("mcp: failed to notify resources list_changed: %v", err)
			}
		case msg, ok := <-updated:
			if !ok {
				return
			}
			uri, _ := msg.(string)
			if err := s.protocol.Notify(string(NotificationResourcesUpdated), struct {
				URI string `json:"uri"`
			}{URI: uri}); err != nil {
				logger.Warning("mcp: failed to notify resource updated: %v", err)
			}
		}
	}
}

// Close shuts down the protocol engine (and, through it, the transport).
func (s *Server) Close() error {
	return s.protocol.Close()
}
