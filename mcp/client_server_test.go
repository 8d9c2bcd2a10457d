package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// pipeTransport is a minimal in-package stand-in for mcp/mcptest.PipeTransport
// (which imports this package and so cannot be imported back here).
type pipeTransport struct {
	lifecycle
	peer *pipeTransport

	messageHandler func(ctx context.Context, message *Message)
	closeHandler   func()
}

func newPipePair() (a, b *pipeTransport) {
	a = &pipeTransport{}
	b = &pipeTransport{}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeTransport) Start(ctx context.Context) error {
	return p.transition(StateNew, StateInitializing)
}

func (p *pipeTransport) Send(ctx context.Context, message *Message) error {
	p.forceState(StateOperational)
	if p.peer.messageHandler != nil {
		p.peer.messageHandler(ctx, message)
	}
	return nil
}

func (p *pipeTransport) Close() error {
	p.forceState(StateStopped)
	if p.closeHandler != nil {
		p.closeHandler()
	}
	return nil
}

func (p *pipeTransport) SetMessageHandler(h func(ctx context.Context, message *Message)) { p.messageHandler = h }
func (p *pipeTransport) SetErrorHandler(h func(error))                                  {}
func (p *pipeTransport) SetCloseHandler(h func())                                        { p.closeHandler = h }
func (p *pipeTransport) State() LifecycleState                                           { return p.current() }

func TestClientServerInitializeAndCallTool(t *testing.T) {
	clientSide, serverSide := newPipePair()

	server := NewServer(
		Implementation{Name: "test-server", Version: "1.0"},
		ServerCapabilities{Tools: &ListChangedCapability{ListChanged: true}},
		"",
	)
	server.Registry().AddTool(Tool{Name: "echo"}, func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error) {
		var params struct {
			Message string `json:"message"`
		}
		json.Unmarshal(args, &params)
		return &CallToolResult{Content: []ContentBlock{{Type: "text", Text: params.Message}}}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := server.Connect(ctx, serverSide); err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	defer server.Close()

	client := NewClient(Implementation{Name: "test-client", Version: "1.0"}, ClientCapabilities{})
	if err := client.Connect(ctx, clientSide); err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if client.ServerInfo().Name != "test-server" {
		t.Errorf("got server info %+v", client.ServerInfo())
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("ListTools: got %+v", tools)
	}

	result, err := client.CallTool(ctx, "echo", map[string]string{"message": "hello"}, nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hello" {
		t.Fatalf("CallTool result: got %+v", result)
	}
}
