package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRequestTimeout is used by Request when RequestOptions.Timeout is
// zero (spec §4.8).
const DefaultRequestTimeout = 60 * time.Second

// Progress is one update delivered via notifications/progress.
type Progress struct {
	Progress float64
	Total    float64
	Message  string
}

// ProgressCallback receives progress updates for a single in-flight
// request, registered via RequestOptions.OnProgress.
type ProgressCallback func(Progress)

// RequestHandlerExtra is passed to a registered request handler.
type RequestHandlerExtra struct {
	// Context is cancelled if the peer sends notifications/cancelled for
	// this request.
	Context context.Context
}

// RequestHandler answers a single JSON-RPC method, returning a value to be
// JSON-marshaled into the response's result, or an error.
type RequestHandler func(extra RequestHandlerExtra, params json.RawMessage) (any, error)

// NotificationHandler reacts to an inbound notification. Errors are
// reported to OnError; they are never surfaced to the peer (spec §4.8).
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// RequestOptions customizes a single outbound request.
type RequestOptions struct {
	OnProgress ProgressCallback
	Timeout    time.Duration
}

// ProtocolOptions configures a Protocol at construction.
type ProtocolOptions struct {
	// EnforceStrictCapabilities, if true, makes Request check the remote's
	// advertised capabilities before sending (spec §4.8).
	EnforceStrictCapabilities bool
}

type responseEnvelope struct {
	result json.RawMessage
	err    *RPCError
}

// Protocol implements the JSON-RPC framing and correlation layer described
// in spec §4.8: request/response matching, progress and cancellation
// plumbing, timeout supervision, and capability gating. It is transport-
// agnostic; Connect attaches it to any Transport.
type Protocol struct {
	options ProtocolOptions

	transport Transport
	nextID    atomic.Int64

	mu                   sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	responseWaiters      map[string]chan responseEnvelope
	progressHandlers     map[string]ProgressCallback
	requestCancellers    map[string]context.CancelFunc

	localCapabilities  capabilitySet
	remoteCapabilities capabilitySet

	// OnClose is invoked once, after the transport's close handler fires.
	OnClose func()
	// OnError is invoked for handler errors and transport-level errors.
	OnError func(error)
	// FallbackRequestHandler handles any method with no specific handler
	// installed; if nil, such requests get MethodNotFound.
	FallbackRequestHandler RequestHandler
	// FallbackNotificationHandler handles any notification method with no
	// specific handler installed.
	FallbackNotificationHandler NotificationHandler
}

// NewProtocol builds a Protocol with the built-in ping and
// notifications/progress/cancelled handlers installed.
func NewProtocol(options ProtocolOptions) *Protocol {
	p := &Protocol{
		options:              options,
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		responseWaiters:      make(map[string]chan responseEnvelope),
		progressHandlers:     make(map[string]ProgressCallback),
		requestCancellers:    make(map[string]context.CancelFunc),
	}
	p.requestHandlers[string(MethodPing)] = func(RequestHandlerExtra, json.RawMessage) (any, error) {
		return struct{}{}, nil
	}
	p.notificationHandlers[string(NotificationCancelled)] = p.handleCancelledNotification
	p.notificationHandlers[string(NotificationProgress)] = p.handleProgressNotification
	return p
}

// SetLocalCapabilities records what this side advertised at initialize,
// used by assertLocalCapability for notification sends and handler
// registration.
func (p *Protocol) SetLocalCapabilities(c capabilitySet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localCapabilities = c
}

// SetRemoteCapabilities records what the peer advertised at initialize,
// used by assertCapabilityForMethod when EnforceStrictCapabilities is set.
func (p *Protocol) SetRemoteCapabilities(c capabilitySet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteCapabilities = c
}

// Connect attaches the protocol to transport, installs its callbacks, and
// starts it.
func (p *Protocol) Connect(ctx context.Context, transport Transport) error {
	p.transport = transport
	transport.SetCloseHandler(p.handleClose)
	transport.SetErrorHandler(p.handleError)
	transport.SetMessageHandler(p.handleMessage)
	return transport.Start(ctx)
}

// Close shuts down the underlying transport, which in turn triggers
// handleClose.
func (p *Protocol) Close() error {
	if p.transport == nil {
		return nil
	}
	return p.transport.Close()
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	waiters := p.responseWaiters
	p.responseWaiters = make(map[string]chan responseEnvelope)
	cancellers := p.requestCancellers
	p.requestCancellers = make(map[string]context.CancelFunc)
	p.progressHandlers = make(map[string]ProgressCallback)
	p.mu.Unlock()

	for _, cancel := range cancellers {
		cancel()
	}
	for _, ch := range waiters {
		ch <- responseEnvelope{err: ErrConnectionClosed}
		close(ch)
	}

	if p.OnClose != nil {
		p.OnClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleMessage(ctx context.Context, m *Message) {
	switch m.Kind {
	case KindRequest:
		p.handleRequest(ctx, m.Req)
	case KindNotification:
		p.handleNotification(ctx, m.Notif)
	case KindResponse:
		p.handleResponse(m.Resp.ID, m.Resp.Result, nil)
	case KindError:
		p.handleResponse(m.Err.ID, nil, &m.Err.Error)
	}
}

func (p *Protocol) handleRequest(ctx context.Context, req *Request) {
	p.mu.RLock()
	handler, ok := p.requestHandlers[req.Method]
	fallback := p.FallbackRequestHandler
	p.mu.RUnlock()
	if !ok {
		handler = fallback
	}

	reqCtx, cancel := context.WithCancel(ctx)
	idKey := req.ID.String()
	p.mu.Lock()
	p.requestCancellers[idKey] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, idKey)
			p.mu.Unlock()
			cancel()

			if r := recover(); r != nil {
				p.sendErrorResponse(req.ID, &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("panic: %v", r)})
			}
		}()

		if handler == nil {
			p.sendErrorResponse(req.ID, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)})
			return
		}

		result, err := handler(RequestHandlerExtra{Context: reqCtx}, req.Params)
		if err != nil {
			rpcErr, ok := err.(*RPCError)
			if !ok {
				rpcErr = &RPCError{Code: CodeInternalError, Message: err.Error()}
			}
			p.handleError(fmt.Errorf("request handler %q: %w", req.Method, err))
			p.sendErrorResponse(req.ID, rpcErr)
			return
		}

		data, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(req.ID, &RPCError{Code: CodeInternalError, Message: "failed to marshal result: " + err.Error()})
			return
		}
		p.send(&Message{Kind: KindResponse, Resp: &Response{JSONRPC: JSONRPCVersion, ID: req.ID, Result: data}})
	}()
}

func (p *Protocol) handleNotification(ctx context.Context, n *Notification) {
	p.mu.RLock()
	handler, ok := p.notificationHandlers[n.Method]
	fallback := p.FallbackNotificationHandler
	p.mu.RUnlock()
	if !ok {
		handler = fallback
	}
	if handler == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.handleError(fmt.Errorf("notification handler %q panicked: %v", n.Method, r))
			}
		}()
		if err := handler(ctx, n.Params); err != nil {
			p.handleError(fmt.Errorf("notification handler %q: %w", n.Method, err))
		}
	}()
}

func (p *Protocol) handleProgressNotification(_ context.Context, params json.RawMessage) error {
	var payload struct {
		Progress      float64         `json:"progress"`
		Total         float64         `json:"total"`
		Message       string          `json:"message"`
		ProgressToken json.RawMessage `json:"progressToken"`
	}
	if err := json.Unmarshal(params, &payload); err != nil {
		return fmt.Errorf("malformed progress notification: %w", err)
	}
	var tok RequestID
	if err := json.Unmarshal(payload.ProgressToken, &tok); err != nil {
		return fmt.Errorf("malformed progress token: %w", err)
	}

	p.mu.RLock()
	handler := p.progressHandlers[tok.String()]
	p.mu.RUnlock()
	if handler != nil {
		handler(Progress{Progress: payload.Progress, Total: payload.Total, Message: payload.Message})
	}
	return nil
}

func (p *Protocol) handleCancelledNotification(_ context.Context, params json.RawMessage) error {
	var payload struct {
		RequestID RequestID `json:"requestId"`
		Reason    string    `json:"reason"`
	}
	if err := json.Unmarshal(params, &payload); err != nil {
		return fmt.Errorf("malformed cancelled notification: %w", err)
	}
	p.mu.RLock()
	cancel := p.requestCancellers[payload.RequestID.String()]
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *Protocol) handleResponse(id RequestID, result json.RawMessage, errObj *ErrorObject) {
	key := id.String()
	p.mu.Lock()
	ch, ok := p.responseWaiters[key]
	if ok {
		delete(p.responseWaiters, key)
	}
	delete(p.progressHandlers, key)
	p.mu.Unlock()

	if !ok {
		p.handleError(fmt.Errorf("mcp: response for unknown request id %s", key))
		return
	}

	if errObj != nil {
		ch <- responseEnvelope{err: &RPCError{Code: errObj.Code, Message: errObj.Message, Data: errObj.Data}}
	} else {
		ch <- responseEnvelope{result: result}
	}
	close(ch)
}

func (p *Protocol) send(m *Message) error {
	if p.transport == nil {
		return fmt.Errorf("mcp: protocol not connected")
	}
	return p.transport.Send(context.Background(), m)
}

func (p *Protocol) sendErrorResponse(id RequestID, rpcErr *RPCError) {
	var data json.RawMessage
	if rpcErr.Data != nil {
		data = rpcErr.Data
	}
	err := p.send(&Message{Kind: KindError, Err: &ErrorResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   ErrorObject{Code: rpcErr.Code, Message: rpcErr.Message, Data: data},
	}})
	if err != nil {
		p.handleError(fmt.Errorf("failed to send error response: %w", err))
	}
}

// Notify sends a one-way notification. If method requires a local
// capability the caller hasn't advertised, it returns a CapabilityError
// without touching the transport.
func (p *Protocol) Notify(method string, params any) error {
	p.mu.RLock()
	local := p.localCapabilities
	p.mu.RUnlock()
	if err := assertLocalCapability(method, local); err != nil {
		return err
	}

	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("mcp: marshal notification params: %w", err)
	}
	return p.send(&Message{Kind: KindNotification, Notif: &Notification{JSONRPC: JSONRPCVersion, Method: method, Params: data}})
}

// SetRequestHandler registers handler for method, after checking the
// caller has advertised whatever local capability it requires.
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := assertLocalCapability(method, p.localCapabilities); err != nil {
		return err
	}
	p.requestHandlers[method] = handler
	return nil
}

// RemoveRequestHandler unregisters a previously-registered handler.
func (p *Protocol) RemoveRequestHandler(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.requestHandlers, method)
}

// SetNotificationHandler registers handler for method.
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notificationHandlers[method] = handler
}

// RemoveNotificationHandler unregisters a previously-registered handler.
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.notificationHandlers, method)
}

func (p *Protocol) nextRequestID() RequestID {
	return NewRequestIDInt(p.nextID.Add(1))
}

// Request sends method/params and blocks for the correlated response,
// unmarshaling its result into R. It enforces capability gating, progress
// plumbing, and timeout/cancellation per spec §4.8. When opts.OnProgress is
// set, the request id is sent as params._meta.progressToken. On timeout or context
// cancellation it removes its waiter, removes any progress handler, sends
// a best-effort notifications/cancelled, and returns the triggering error.
func Request[R any](ctx context.Context, p *Protocol, method string, params any, opts *RequestOptions) (R, error) {
	var zero R

	if opts == nil {
		opts = &RequestOptions{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	if p.options.EnforceStrictCapabilities {
		p.mu.RLock()
		remote := p.remoteCapabilities
		p.mu.RUnlock()
		if err := assertCapabilityForMethod(method, remote); err != nil {
			return zero, err
		}
	}

	id := p.nextRequestID()
	key := id.String()
	ch := make(chan responseEnvelope, 1)

	p.mu.Lock()
	p.responseWaiters[key] = ch
	if opts.OnProgress != nil {
		p.progressHandlers[key] = opts.OnProgress
	}
	p.mu.Unlock()

	cleanup := func() {
		p.mu.Lock()
		delete(p.responseWaiters, key)
		delete(p.progressHandlers, key)
		p.mu.Unlock()
	}

	data, err := json.Marshal(params)
	if err != nil {
		cleanup()
		return zero, fmt.Errorf("mcp: marshal request params: %w", err)
	}
	if opts.OnProgress != nil {
		var obj map[string]json.RawMessage
		if json.Unmarshal(data, &obj) == nil && obj != nil {
			token := id
			if meta, err := json.Marshal(Meta{ProgressToken: &token}); err == nil {
				obj["_meta"] = meta
				if withMeta, err := json.Marshal(obj); err == nil {
					data = withMeta
				}
			}
		}
	}
	if err := p.send(&Message{Kind: KindRequest, Req: &Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: data}}); err != nil {
		cleanup()
		return zero, fmt.Errorf("mcp: send request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return zero, envelope.err
		}
		var result R
		if len(envelope.result) > 0 {
			if err := json.Unmarshal(envelope.result, &result); err != nil {
				return zero, fmt.Errorf("mcp: unmarshal result: %w", err)
			}
		}
		return result, nil
	case <-ctx.Done():
		cleanup()
		p.sendCancelNotification(id, ctx.Err().Error())
		return zero, ctx.Err()
	case <-timer.C:
		cleanup()
		p.sendCancelNotification(id, "request timed out")
		return zero, ErrRequestTimeout(method)
	}
}

func (p *Protocol) sendCancelNotification(id RequestID, reason string) {
	_ = p.Notify(string(NotificationCancelled), map[string]any{"requestId": id, "reason": reason})
}
