package mcp

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cskr/pubsub"
)

// Registry topic names, published through the shared PubSub so a Server's
// session loop can forward mutations as notifications (spec §4.9).
const (
	topicToolsChanged     = "tools_changed"
	topicPromptsChanged   = "prompts_changed"
	topicResourcesChanged = "resources_changed"
	topicResourceUpdated  = "resource_updated"
)

// ToolHandler executes a tools/call invocation.
type ToolHandler func(extra RequestHandlerExtra, args json.RawMessage) (*CallToolResult, error)

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// PromptHandler resolves a prompts/get invocation.
type PromptHandler func(extra RequestHandlerExtra, args map[string]string) (*GetPromptResult, error)

// GetPromptResult is the result of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage is one turn in a resolved prompt.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// ResourceHandler reads the contents of a registered resource.
type ResourceHandler func(extra RequestHandlerExtra, uri string) (*ReadResourceResult, error)

// ReadResourceResult is the result of resources/read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ResourceContents is one item of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

type toolEntry struct {
	tool    Tool
	handler ToolHandler
}

type promptEntry struct {
	prompt  Prompt
	handler PromptHandler
}

type resourceEntry struct {
	resource Resource
	handler  ResourceHandler
}

// Registry is the server-side feature catalogue: tools, prompts, and
// resources, each a mutex-guarded map swapped as a whole slice snapshot on
// mutation so */list iteration never blocks on a writer (spec §4.9's
// copy-on-write semantics realized with a guarded map, per spec.md §9).
type Registry struct {
	caps *ServerCapabilities
	bus  *pubsub.PubSub

	mu        sync.RWMutex
	tools     map[string]toolEntry
	toolSnap  []Tool
	prompts   map[string]promptEntry
	promptSnap []Prompt
	resources map[string]resourceEntry
	resourceSnap []Resource
	subscribers map[string]map[string]struct{} // uri -> set of subscriber ids
}

// NewRegistry builds an empty registry gated by caps: AddTool/AddPrompt/
// AddResource fail unless the corresponding ServerCapabilities field is
// non-nil. bus receives list_changed/resources_updated events for the
// owning Server's session loop to forward to the transport.
func NewRegistry(caps *ServerCapabilities, bus *pubsub.PubSub) *Registry {
	return &Registry{
		caps:        caps,
		bus:         bus,
		tools:       make(map[string]toolEntry),
		prompts:     make(map[string]promptEntry),
		resources:   make(map[string]resourceEntry),
		subscribers: make(map[string]map[string]struct{}),
	}
}

// AddTool registers tool, replacing any existing entry of the same name.
func (r *Registry) AddTool(tool Tool, handler ToolHandler) error {
	if r.caps.Tools == nil {
		return fmt.Errorf("mcp: cannot add tool %q: server did not configure the tools capability", tool.Name)
	}
	if err := ValidateFeatureName("tool", tool.Name); err != nil {
		return err
	}
	r.mu.Lock()
	r.tools[tool.Name] = toolEntry{tool: tool, handler: handler}
	r.rebuildToolSnapshot()
	r.mu.Unlock()
	r.bus.TryPub(struct{}{}, topicToolsChanged)
	return nil
}

// RemoveTool removes a tool by name; a no-op if absent.
func (r *Registry) RemoveTool(name string) {
	r.mu.Lock()
	_, existed := r.tools[name]
	delete(r.tools, name)
	if existed {
		r.rebuildToolSnapshot()
	}
	r.mu.Unlock()
	if existed {
		r.bus.TryPub(struct{}{}, topicToolsChanged)
	}
}

func (r *Registry) rebuildToolSnapshot() {
	snap := make([]Tool, 0, len(r.tools))
	for _, e := range r.tools {
		snap = append(snap, e.tool)
	}
	r.toolSnap = snap
}

// ListTools returns the current tool snapshot. cursor is accepted but
// unused beyond echoing absence: this registry returns every tool in one
// page (nextCursor is always "").
func (r *Registry) ListTools(cursor string) (tools []Tool, nextCursor string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toolSnap, ""
}

// CallTool invokes the named tool's handler.
func (r *Registry) CallTool(extra RequestHandlerExtra, name string, args json.RawMessage) (*CallToolResult, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("Tool %s not found", name)}
	}
	result, err := entry.handler(extra, args)
	if err != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	return result, nil
}

// AddPrompt registers prompt, replacing any existing entry of the same name.
func (r *Registry) AddPrompt(prompt Prompt, handler PromptHandler) error {
	if r.caps.Prompts == nil {
		return fmt.Errorf("mcp: cannot add prompt %q: server did not configure the prompts capability", prompt.Name)
	}
	if err := ValidateFeatureName("prompt", prompt.Name); err != nil {
		return err
	}
	r.mu.Lock()
	r.prompts[prompt.Name] = promptEntry{prompt: prompt, handler: handler}
	r.rebuildPromptSnapshot()
	r.mu.Unlock()
	r.bus.TryPub(struct{}{}, topicPromptsChanged)
	return nil
}

// RemovePrompt removes a prompt by name; a no-op if absent.
func (r *Registry) RemovePrompt(name string) {
	r.mu.Lock()
	_, existed := r.prompts[name]
	delete(r.prompts, name)
	if existed {
		r.rebuildPromptSnapshot()
	}
	r.mu.Unlock()
	if existed {
		r.bus.TryPub(struct{}{}, topicPromptsChanged)
	}
}

func (r *Registry) rebuildPromptSnapshot() {
	snap := make([]Prompt, 0, len(r.prompts))
	for _, e := range r.prompts {
		snap = append(snap, e.prompt)
	}
	r.promptSnap = snap
}

// ListPrompts returns the current prompt snapshot.
func (r *Registry) ListPrompts(cursor string) (prompts []Prompt, nextCursor string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.promptSnap, ""
}

// GetPrompt resolves the named prompt's handler.
func (r *Registry) GetPrompt(extra RequestHandlerExtra, name string, args map[string]string) (*GetPromptResult, error) {
	r.mu.RLock()
	entry, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("Prompt %s not found", name)}
	}
	result, err := entry.handler(extra, args)
	if err != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	return result, nil
}

// AddResource registers resource, replacing any existing entry of the same URI.
func (r *Registry) AddResource(resource Resource, handler ResourceHandler) error {
	if r.caps.Resources == nil {
		return fmt.Errorf("mcp: cannot add resource %q: server did not configure the resources capability", resource.URI)
	}
	if err := ValidateResourceURI(resource.URI); err != nil {
		return err
	}
	r.mu.Lock()
	r.resources[resource.URI] = resourceEntry{resource: resource, handler: handler}
	r.rebuildResourceSnapshot()
	r.mu.Unlock()
	r.bus.TryPub(struct{}{}, topicResourcesChanged)
	return nil
}

// RemoveResource removes a resource by URI. If the URI has subscribers,
// each receives one notifications/resources/updated event (spec §4.9).
func (r *Registry) RemoveResource(uri string) {
	r.mu.Lock()
	_, existed := r.resources[uri]
	delete(r.resources, uri)
	subs := r.subscribers[uri]
	delete(r.subscribers, uri)
	if existed {
		r.rebuildResourceSnapshot()
	}
	r.mu.Unlock()
	if existed {
		r.bus.TryPub(struct{}{}, topicResourcesChanged)
	}
	for range subs {
		r.bus.TryPub(uri, topicResourceUpdated)
	}
}

func (r *Registry) rebuildResourceSnapshot() {
	snap := make([]Resource, 0, len(r.resources))
	for _, e := range r.resources {
		snap = append(snap, e.resource)
	}
	r.resourceSnap = snap
}

// ListResources returns the current resource snapshot.
func (r *Registry) ListResources(cursor string) (resources []Resource, nextCursor string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resourceSnap, ""
}

// ReadResource reads the named resource's contents.
func (r *Registry) ReadResource(extra RequestHandlerExtra, uri string) (*ReadResourceResult, error) {
	r.mu.RLock()
	entry, ok := r.resources[uri]
	r.mu.RUnlock()
	if !ok {
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("Resource %s not found", uri)}
	}
	result, err := entry.handler(extra, uri)
	if err != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	return result, nil
}

// Subscribe registers subscriberID's interest in uri's updates.
func (r *Registry) Subscribe(uri, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscribers[uri]
	if !ok {
		set = make(map[string]struct{})
		r.subscribers[uri] = set
	}
	set[subscriberID] = struct{}{}
}

// Unsubscribe removes subscriberID's interest in uri.
func (r *Registry) Unsubscribe(uri, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subscribers[uri]; ok {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(r.subscribers, uri)
		}
	}
}

// Changes returns the channels a Server's session loop should select on
// to learn of catalogue mutations and forward the appropriate
// notification to its transport.
func (r *Registry) Changes() (tools, prompts, resources, resourceUpdates chan any) {
	return r.bus.Sub(topicToolsChanged), r.bus.Sub(topicPromptsChanged), r.bus.Sub(topicResourcesChanged), r.bus.Sub(topicResourceUpdated)
}
