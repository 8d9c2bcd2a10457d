package mcp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cskr/pubsub"
)

func newTestRegistry() *Registry {
	caps := &ServerCapabilities{
		Tools:     &ListChangedCapability{ListChanged: true},
		Prompts:   &ListChangedCapability{ListChanged: true},
		Resources: &ResourcesCapability{Subscribe: true, ListChanged: true},
	}
	return NewRegistry(caps, pubsub.New(16))
}

func TestAddToolRejectsInvalidName(t *testing.T) {
	r := newTestRegistry()
	err := r.AddTool(Tool{Name: "has a space"}, func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected AddTool to reject an invalid name")
	}
}

func TestAddToolRejectsWhenCapabilityNotConfigured(t *testing.T) {
	r := NewRegistry(&ServerCapabilities{}, pubsub.New(16))
	err := r.AddTool(Tool{Name: "echo"}, func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected AddTool to fail when the tools capability is not configured")
	}
}

func TestAddAndCallTool(t *testing.T) {
	r := newTestRegistry()
	err := r.AddTool(Tool{Name: "echo"}, func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error) {
		var params struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, err
		}
		return &CallToolResult{Content: []ContentBlock{{Type: "text", Text: params.Message}}}, nil
	})
	if err != nil {
		t.Fatalf("AddTool: %v", err)
	}

	tools, cursor := r.ListTools("")
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("ListTools: got %+v", tools)
	}
	if cursor != "" {
		t.Errorf("expected empty cursor, got %q", cursor)
	}

	result, err := r.CallTool(RequestHandlerExtra{}, "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Errorf("CallTool result: got %+v", result)
	}
}

func TestCallUnknownToolReturnsInvalidParams(t *testing.T) {
	r := newTestRegistry()
	_, err := r.CallTool(RequestHandlerExtra{}, "missing", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown tool")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != CodeInvalidParams {
		t.Errorf("got code %d, want %d", rpcErr.Code, CodeInvalidParams)
	}
}

func TestAddResourceRejectsInvalidURI(t *testing.T) {
	r := newTestRegistry()
	err := r.AddResource(Resource{URI: "not-a-uri"}, func(extra RequestHandlerExtra, uri string) (*ReadResourceResult, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected AddResource to reject a URI without a scheme")
	}
}

func TestRemoveToolNotifiesOnlyWhenPresent(t *testing.T) {
	r := newTestRegistry()
	changes, _, _, _ := r.Changes()

	r.RemoveTool("never-added")
	select {
	case <-changes:
		t.Fatal("did not expect a notification for removing an absent tool")
	default:
	}

	if err := r.AddTool(Tool{Name: "echo"}, func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("AddTool: %v", err)
	}
	<-changes // drain the add notification

	r.RemoveTool("echo")
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a notification after removing a present tool")
	}
}
