package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// JSONRPCVersion is the only JSON-RPC version this package understands.
const JSONRPCVersion = "2.0"

// Method is a closed-ish set of MCP method names. Host-defined methods
// are represented as plain strings; the constants below cover the
// methods MCP itself defines.
type Method string

const (
	MethodInitialize              Method = "initialize"
	MethodPing                    Method = "ping"
	MethodToolsList                Method = "tools/list"
	MethodToolsCall                Method = "tools/call"
	MethodPromptsList              Method = "prompts/list"
	MethodPromptsGet                Method = "prompts/get"
	MethodResourcesList             Method = "resources/list"
	MethodResourcesRead             Method = "resources/read"
	MethodResourcesTemplatesList     Method = "resources/templates/list"
	MethodResourcesSubscribe        Method = "resources/subscribe"
	MethodResourcesUnsubscribe      Method = "resources/unsubscribe"
	MethodCompletionComplete        Method = "completion/complete"
	MethodLoggingSetLevel           Method = "logging/setLevel"
	MethodSamplingCreateMessage     Method = "sampling/createMessage"
	MethodRootsList                 Method = "roots/list"
	MethodElicitationCreate         Method = "elicitation/create"

	NotificationInitialized          Method = "notifications/initialized"
	NotificationCancelled            Method = "notifications/cancelled"
	NotificationProgress             Method = "notifications/progress"
	NotificationToolsListChanged     Method = "notifications/tools/list_changed"
	NotificationPromptsListChanged   Method = "notifications/prompts/list_changed"
	NotificationResourcesListChanged Method = "notifications/resources/list_changed"
	NotificationResourcesUpdated     Method = "notifications/resources/updated"
	NotificationMessage              Method = "notifications/message"
)

// SupportedProtocolVersions is the ordered set of protocol versions this
// package negotiates, oldest first. LatestProtocolVersion is the last
// entry.
var SupportedProtocolVersions = []string{"2024-11-05", "2025-03-26", "2025-06-18"}

// LatestProtocolVersion is the newest protocol version this package speaks.
const LatestProtocolVersion = "2025-06-18"

// NegotiateProtocolVersion implements the rule from spec §3: return the
// client's requested version iff supported, else the latest.
func NegotiateProtocolVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return requested
		}
	}
	return LatestProtocolVersion
}

// RequestID is the JSON-RPC id union: a non-negative or negative integer, a
// string, or (for responses matching notifications, never) absent. It round
// trips without precision loss or type conversion.
type RequestID struct {
	str      string
	num      int64
	isString bool
	isNum    bool
}

// NewRequestIDString builds a string-valued request id.
func NewRequestIDString(s string) RequestID { return RequestID{str: s, isString: true} }

// NewRequestIDInt builds an integer-valued request id.
func NewRequestIDInt(n int64) RequestID { return RequestID{num: n, isNum: true} }

// IsValid reports whether the id carries a value (vs. the zero RequestID,
// used as a sentinel for "no id").
func (r RequestID) IsValid() bool { return r.isString || r.isNum }

// String renders the id for logging and map keys.
func (r RequestID) String() string {
	switch {
	case r.isString:
		return r.str
	case r.isNum:
		return fmt.Sprintf("%d", r.num)
	default:
		return "<invalid>"
	}
}

func (r RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case r.isString:
		return json.Marshal(r.str)
	case r.isNum:
		return json.Marshal(r.num)
	default:
		return []byte("null"), nil
	}
}

func (r *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*r = RequestID{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*r = RequestID{str: s, isString: true}
		return nil
	}
	var n int64
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var jn json.Number
	if err := json.Unmarshal(trimmed, &jn); err != nil {
		return fmt.Errorf("invalid request id %q: %w", trimmed, err)
	}
	n, err := jn.Int64()
	if err != nil {
		return fmt.Errorf("request id %q is not an integer or string", trimmed)
	}
	*r = RequestID{num: n, isNum: true}
	return nil
}

// ProgressToken is the integer-or-string nonce carried in params._meta.
type ProgressToken = RequestID

// Meta carries the optional _meta envelope field, including the progress
// token used to correlate notifications/progress events back to a request.
type Meta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
	Extra         map[string]any `json:"-"`
}

func (m Meta) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.ProgressToken != nil {
		out["progressToken"] = m.ProgressToken
	}
	if len(out) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(out)
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Meta{}
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if pt, ok := raw["progressToken"]; ok {
		var tok ProgressToken
		if err := json.Unmarshal(pt, &tok); err != nil {
			return err
		}
		m.ProgressToken = &tok
		delete(raw, "progressToken")
	}
	if len(raw) > 0 {
		m.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			m.Extra[k] = val
		}
	}
	return nil
}

// Request is a JSON-RPC 2.0 request: it carries an id and expects a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 success response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// ErrorObject is the `error` member of a JSON-RPC error response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is a JSON-RPC 2.0 error response.
type ErrorResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      RequestID   `json:"id"`
	Error   ErrorObject `json:"error"`
}

// Notification is a JSON-RPC 2.0 notification: no id, no response expected.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MessageKind discriminates the four Message variants.
type MessageKind int

const (
	KindRequest MessageKind = iota
	KindResponse
	KindError
	KindNotification
)

// Message is the tagged union of the four JSON-RPC message variants. Exactly
// one of Req/Resp/Err/Notif is non-nil, matching Kind.
type Message struct {
	Kind  MessageKind
	Req   *Request
	Resp  *Response
	Err   *ErrorResponse
	Notif *Notification
}

// envelope is the raw shape used to classify an incoming message per the
// ordering rule in spec §4.1: method&&id -> request; method&&!id ->
// notification; result -> response; error -> error response.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  json.RawMessage `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// DecodeMessage parses a single JSON-RPC text into a Message, classifying it
// per spec §4.1. Unknown object keys are ignored by virtue of only decoding
// the fields above.
func DecodeMessage(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewProtocolError(CodeParseError, "invalid JSON: "+err.Error())
	}
	hasMethod := len(env.Method) > 0 && !bytes.Equal(env.Method, []byte("null"))
	hasID := len(env.ID) > 0 && !bytes.Equal(env.ID, []byte("null"))

	switch {
	case hasMethod && hasID:
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, NewProtocolError(CodeInvalidRequest, "malformed request: "+err.Error())
		}
		return &Message{Kind: KindRequest, Req: &req}, nil
	case hasMethod && !hasID:
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, NewProtocolError(CodeInvalidRequest, "malformed notification: "+err.Error())
		}
		return &Message{Kind: KindNotification, Notif: &n}, nil
	case len(env.Error) > 0:
		var e ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, NewProtocolError(CodeInvalidRequest, "malformed error response: "+err.Error())
		}
		return &Message{Kind: KindError, Err: &e}, nil
	case env.Result != nil:
		var r Response
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, NewProtocolError(CodeInvalidRequest, "malformed response: "+err.Error())
		}
		return &Message{Kind: KindResponse, Resp: &r}, nil
	default:
		return nil, NewProtocolError(CodeInvalidRequest, "message is neither request, response, error, nor notification")
	}
}

// EncodeMessage serializes a Message back to its JSON-RPC text.
func EncodeMessage(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindRequest:
		m.Req.JSONRPC = JSONRPCVersion
		return json.Marshal(m.Req)
	case KindResponse:
		m.Resp.JSONRPC = JSONRPCVersion
		return json.Marshal(m.Resp)
	case KindError:
		m.Err.JSONRPC = JSONRPCVersion
		return json.Marshal(m.Err)
	case KindNotification:
		m.Notif.JSONRPC = JSONRPCVersion
		return json.Marshal(m.Notif)
	default:
		return nil, fmt.Errorf("mcp: unknown message kind %d", m.Kind)
	}
}

// ID returns the request id for Request/Response/Error messages, and the
// zero (invalid) RequestID for notifications.
func (m *Message) ID() RequestID {
	switch m.Kind {
	case KindRequest:
		return m.Req.ID
	case KindResponse:
		return m.Resp.ID
	case KindError:
		return m.Err.ID
	default:
		return RequestID{}
	}
}

// --- Domain types -----------------------------------------------------

// Implementation identifies a client or server (name + version) as exchanged
// during initialize.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolAnnotations are behavioral hints about a tool, per MCP's tool
// annotation extension.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool   `json:"openWorldHint,omitempty"`
}

// Tool describes a callable tool exposed by a server.
type Tool struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	InputSchema  *jsonschema.Schema  `json:"inputSchema"`
	OutputSchema *jsonschema.Schema  `json:"outputSchema,omitempty"`
	Annotations  *ToolAnnotations    `json:"annotations,omitempty"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a reusable prompt template exposed by a server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// Resource describes a readable resource exposed by a server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a URI template for dynamically addressed
// resources.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentBlock is one element of a tool/prompt result's content array.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ListChangedCapability is the feature-flag record shared by
// ClientCapabilities and ServerCapabilities entries that only report
// list changes.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities are the features a client advertises at initialize.
type ClientCapabilities struct {
	Roots        *ListChangedCapability `json:"roots,omitempty"`
	Sampling     map[string]any         `json:"sampling,omitempty"`
	Elicitation  map[string]any         `json:"elicitation,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

// ResourcesCapability describes the resources-specific server feature flags.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities are the features a server advertises at initialize.
type ServerCapabilities struct {
	Tools        *ListChangedCapability `json:"tools,omitempty"`
	Prompts      *ListChangedCapability `json:"prompts,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Logging      map[string]any         `json:"logging,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the result of a successful initialize request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}
