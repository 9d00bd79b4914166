package drpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Engine owns one MessageChannel and multiplexes outbound calls and inbound
// requests over it. An Engine is both a client (via its Proxy) and a server
// (via its routing tree) on the same connection.
//
// A single mutex guards the pending-request tables and the channel
// reference; inbound request handlers run in a dedicated goroutine per call
// so the dispatch path is never blocked waiting on a handler.
type Engine struct {
	mu      sync.Mutex
	channel MessageChannel
	factory func() (any, error)

	cfg    Config
	router *Router
	proxy  *Proxy

	state State

	nextID atomic.Int64

	queue    []*pendingCall
	inFlight map[int64]*pendingCall

	retries int

	closeOnce sync.Once
	closed    chan struct{}
}

// newEngine constructs an Engine bound to channel, which may be a value
// satisfying MessageChannel, a func() (MessageChannel, error) / func() (any,
// error) factory enabling reconnection, or any value bindChannel can adapt.
func newEngine(channel any, opts ...Option) (*Engine, error) {
	cfg := resolveConfig(opts...)

	e := &Engine{
		cfg:      cfg,
		router:   NewRouter(cfg.Routing),
		inFlight: make(map[int64]*pendingCall),
		closed:   make(chan struct{}),
	}
	e.proxy = newProxy(e, "")

	switch f := channel.(type) {
	case func() (MessageChannel, error):
		e.factory = func() (any, error) { return f() }
	case func() (any, error):
		e.factory = f
	default:
		bound, err := bindChannel(channel)
		if err != nil {
			return nil, err
		}
		e.channel = bound
	}

	return e, nil
}

// Start wires up channel listeners and begins the connection state machine's
// INIT → CONNECTING transition.
func (e *Engine) Start(_ context.Context) error {
	if e.channel == nil {
		ch, err := e.obtainChannel()
		if err != nil {
			return err
		}
		e.channel = ch
	}

	e.transition(StateConnecting)
	e.wireListeners()

	if e.cfg.Opened {
		e.transitionConnected()
	}
	return nil
}

func (e *Engine) obtainChannel() (MessageChannel, error) {
	if e.factory == nil {
		return nil, fmt.Errorf("drpc: no channel or channel factory supplied")
	}
	raw, err := e.factory()
	if err != nil {
		return nil, fmt.Errorf("drpc: channel factory: %w", err)
	}
	return bindChannel(raw)
}

// wireListeners subscribes to the five events a MessageChannel must
// support. Must be called after e.channel is set and before the channel
// begins producing events.
func (e *Engine) wireListeners() {
	ch := e.channel
	ch.On(EventMessage, func(v any) {
		s, ok := normalizePayload(v)
		if !ok {
			return
		}
		e.handleRawMessage([]byte(s))
	})
	ch.On(EventOpen, func(any) { e.transitionConnected() })
	ch.On(EventClose, func(any) { e.handleDisconnect() })
	ch.On(EventError, func(any) { e.handleDisconnect() })
	ch.On(EventExit, func(any) { e.handleDisconnect() })
}

// State returns the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Channel returns the underlying bound channel.
func (e *Engine) Channel() MessageChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel
}

// Done returns a channel closed once the engine reaches CLOSED.
func (e *Engine) Done() <-chan struct{} {
	return e.closed
}

// transition sets state unconditionally and, if it actually changed,
// notifies cfg.OnStateChange outside the lock (callbacks may themselves
// call back into the engine, e.g. to issue a call on state change).
func (e *Engine) transition(newState State) {
	e.mu.Lock()
	old := e.state
	e.state = newState
	e.mu.Unlock()

	if old == newState {
		return
	}
	e.log("state transition", "from", old.String(), "to", newState.String())
	if e.cfg.OnStateChange != nil {
		e.cfg.OnStateChange(old, newState)
	}
	if newState == StateClosed {
		e.closeOnce.Do(func() { close(e.closed) })
	}
}

// transitionConnected performs the CONNECTING → CONNECTED transition:
// flush the send queue (transmit each queued request, promote to
// in-flight) and reset the retry counter.
func (e *Engine) transitionConnected() {
	e.mu.Lock()
	if e.state == StateConnected || e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.retries = 0
	queued := e.queue
	e.queue = nil
	e.mu.Unlock()

	e.transition(StateConnected)

	for _, pc := range queued {
		e.transmit(pc)
	}
}

// transmit encodes and writes a pendingCall's request frame, promoting it
// to the in-flight table first. If the write fails, the call is demoted
// back to the send queue rather than failed outright, since the channel
// rejecting a write doesn't necessarily mean the connection is gone.
func (e *Engine) transmit(pc *pendingCall) {
	e.mu.Lock()
	pc.state = callInFlight
	e.inFlight[pc.id] = pc
	e.mu.Unlock()

	data, err := encodeRequest(pc.id, pc.method, pc.params)
	if err != nil {
		e.mu.Lock()
		delete(e.inFlight, pc.id)
		e.mu.Unlock()
		pc.complete(pendingResult{err: NewCallError(CodeInternalError, err.Error(), nil)})
		return
	}

	if werr := e.channel.Write(string(data)); werr != nil {
		e.mu.Lock()
		delete(e.inFlight, pc.id)
		pc.state = callQueued
		e.queue = append(e.queue, pc)
		e.mu.Unlock()
	}
}

// handleDisconnect implements the CONNECTED → RECONNECTING|CLOSED
// transition: fail all in-flight calls atomically with CodeConnectionClosed,
// then either arm a reconnection attempt or close terminally.
func (e *Engine) handleDisconnect() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	failed := make([]*pendingCall, 0, len(e.inFlight))
	for id, pc := range e.inFlight {
		failed = append(failed, pc)
		delete(e.inFlight, id)
	}
	canRetry := e.factory != nil && e.retries < e.cfg.MaxRetries
	if canRetry {
		e.retries++
	}
	e.mu.Unlock()

	for _, pc := range failed {
		pc.complete(pendingResult{err: NewCallError(CodeConnectionClosed, messageForCode(CodeConnectionClosed), nil)})
	}

	if canRetry {
		e.transition(StateReconnecting)
		e.log("reconnecting", "attempt", e.retries, "delay", e.cfg.RetryDelay)
		time.AfterFunc(e.cfg.RetryDelay, e.reconnect)
		return
	}
	e.transition(StateClosed)
}

// reconnect implements the RECONNECTING → CONNECTING transition: obtain a
// new channel from the factory and re-wire listeners. A failure to obtain a
// new channel is treated as another disconnect, which either re-arms retry
// or closes terminally depending on the retry budget.
func (e *Engine) reconnect() {
	e.mu.Lock()
	if e.state != StateReconnecting {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.transition(StateConnecting)

	ch, err := e.obtainChannel()
	if err != nil {
		e.log("reconnect failed", "err", err)
		e.handleDisconnect()
		return
	}

	e.mu.Lock()
	e.channel = ch
	e.mu.Unlock()

	e.wireListeners()
	if e.cfg.Opened {
		e.transitionConnected()
	}
}

// Close transitions the engine to CLOSED unconditionally, regardless of the
// retry budget, and closes the underlying channel if it exposes a Close
// method.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	failed := make([]*pendingCall, 0, len(e.inFlight)+len(e.queue))
	for id, pc := range e.inFlight {
		failed = append(failed, pc)
		delete(e.inFlight, id)
	}
	failed = append(failed, e.queue...)
	e.queue = nil
	ch := e.channel
	e.mu.Unlock()

	for _, pc := range failed {
		pc.complete(pendingResult{err: NewCallError(CodeConnectionClosed, messageForCode(CodeConnectionClosed), nil)})
	}

	if closer, ok := ch.(interface{ Close() error }); ok && ch != nil {
		_ = closer.Close()
	}
	e.transition(StateClosed)
}

// call implements the outbound call lifecycle: allocate an id, build the
// frame, register a pendingCall with an armed timeout, transmit if
// connected (else queue), and block until completion.
//
// ctx is accepted for idiomatic signature consistency (and so it can carry
// a deadline into future handler-side work via Context values) but is
// intentionally NOT selected on as an independent cancellation source: a
// call can only be resolved by a matching response, a timeout, or the
// connection closing — there is no separate cancellation primitive.
func (e *Engine) call(ctx context.Context, method string, params []any) (any, error) {
	_ = ctx

	id := e.nextID.Add(1)
	pc := &pendingCall{
		id:     id,
		method: method,
		params: params,
		done:   make(chan struct{}),
	}
	pc.timer = time.AfterFunc(e.cfg.Timeout, func() { e.timeoutCall(pc) })

	e.mu.Lock()
	connected := e.state == StateConnected
	if connected {
		pc.state = callInFlight
		e.inFlight[id] = pc
	} else {
		pc.state = callQueued
		e.queue = append(e.queue, pc)
	}
	e.mu.Unlock()

	if connected {
		e.transmitExisting(pc)
	}

	<-pc.done

	res := pc.result
	if res.err != nil {
		return nil, res.err
	}
	return res.value, nil
}

// transmitExisting writes an already-registered in-flight pendingCall,
// demoting it back to the send queue if the write fails.
func (e *Engine) transmitExisting(pc *pendingCall) {
	data, err := encodeRequest(pc.id, pc.method, pc.params)
	if err != nil {
		e.mu.Lock()
		delete(e.inFlight, pc.id)
		e.mu.Unlock()
		pc.complete(pendingResult{err: NewCallError(CodeInternalError, err.Error(), nil)})
		return
	}
	if werr := e.channel.Write(string(data)); werr != nil {
		e.mu.Lock()
		delete(e.inFlight, pc.id)
		pc.state = callQueued
		e.queue = append(e.queue, pc)
		e.mu.Unlock()
	}
}

// timeoutCall fires when a pendingCall's timer expires. If the call has
// already completed (response arrived first), this is a no-op via
// pendingCall.complete's sync.Once.
func (e *Engine) timeoutCall(pc *pendingCall) {
	e.mu.Lock()
	delete(e.inFlight, pc.id)
	e.removeFromQueueLocked(pc)
	e.mu.Unlock()

	e.log("call timeout", "id", pc.id, "method", pc.method)
	pc.complete(pendingResult{err: NewCallError(CodeRequestTimeout, messageForCode(CodeRequestTimeout), nil)})
}

// removeFromQueueLocked removes pc from the send queue. Callers must hold
// e.mu. A no-op if pc isn't queued (already transmitted or completed).
func (e *Engine) removeFromQueueLocked(pc *pendingCall) {
	for i, q := range e.queue {
		if q == pc {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// handleRawMessage decodes one inbound frame and dispatches it as a request
// or a response.
func (e *Engine) handleRawMessage(raw []byte) {
	frame, err := decodeFrame(raw)
	if err != nil {
		if e.cfg.OnParseError != nil {
			e.cfg.OnParseError(raw, err)
		}
		e.writeRaw(parseErrorResponse())
		return
	}

	switch frame.classify() {
	case frameRequest:
		e.handleRequest(frame)
	case frameResponse:
		e.handleResponse(frame)
	default:
		e.writeRaw(mustEncodeError(-1, NewCallError(CodeInvalidRequest, messageForCode(CodeInvalidRequest), nil)))
	}
}

// handleRequest dispatches an inbound method call through the router in a
// dedicated goroutine so a slow handler can never starve the read loop.
func (e *Engine) handleRequest(frame *wireFrame) {
	if frame.ID == nil {
		e.writeRaw(mustEncodeError(-1, NewCallError(CodeInvalidRequest, messageForCode(CodeInvalidRequest), nil)))
		return
	}
	id := *frame.ID
	method := *frame.Method

	params, perr := decodeParams(frame.Params)
	if perr != nil {
		e.respondError(id, perr)
		return
	}

	ctx := &Context{
		ID:             id,
		Method:         method,
		OriginalMethod: method,
		Params:         params,
		Invoke:         e.proxy,
	}

	go func() {
		// Belt-and-suspenders alongside callHandler's own recover in
		// router.go: a handler failure, however it manifests, is local to
		// this one call and must never take the read loop's goroutine (and
		// so the whole engine) down with it.
		defer func() {
			if r := recover(); r != nil {
				e.respondError(id, handlerError(recoveredPanicError(r)))
			}
		}()
		value, err := e.router.Dispatch(ctx)
		if err != nil {
			e.respondError(id, handlerError(err))
			return
		}
		e.respondSuccess(id, value)
	}()
}

// handleResponse delivers a decoded response frame to its matching
// pendingCall, or drops it silently if no pendingCall is waiting.
func (e *Engine) handleResponse(frame *wireFrame) {
	if frame.ID == nil {
		return
	}
	id := *frame.ID

	e.mu.Lock()
	pc, ok := e.inFlight[id]
	if ok {
		delete(e.inFlight, id)
	}
	e.mu.Unlock()

	if !ok {
		if e.cfg.OnDroppedResponse != nil {
			e.cfg.OnDroppedResponse(id)
		}
		return
	}

	if frame.Error != nil {
		pc.complete(pendingResult{err: &CallError{
			Message: frame.Error.Message,
			Code:    frame.Error.Code,
			Data:    frame.Error.Data,
			Type:    typeForCode(frame.Error.Code),
		}})
		return
	}

	var value any
	if len(frame.Result) > 0 {
		_ = json.Unmarshal(frame.Result, &value)
	}
	pc.complete(pendingResult{value: value})
}

func (e *Engine) respondSuccess(id int64, value any) {
	data, err := encodeSuccess(id, value)
	if err != nil {
		e.respondError(id, NewCallError(CodeInternalError, err.Error(), nil))
		return
	}
	e.writeRaw(data)
}

func (e *Engine) respondError(id int64, ce *CallError) {
	e.writeRaw(mustEncodeError(id, ce))
}

// writeRaw writes pre-encoded bytes, best-effort: a write failure here
// means the connection is already closing, and the peer will eventually
// see its own call time out.
func (e *Engine) writeRaw(data []byte) {
	e.mu.Lock()
	ch := e.channel
	e.mu.Unlock()
	if ch == nil {
		return
	}
	_ = ch.Write(string(data))
}

func mustEncodeError(id int64, ce *CallError) []byte {
	data, err := encodeError(id, ce)
	if err != nil {
		panic("drpc: encodeError: " + err.Error())
	}
	return data
}
