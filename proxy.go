package drpc

import (
	"context"
	"strings"
	"sync"
)

// Proxy is the user-facing dynamic outbound surface. Go has no dynamic
// property interception, so the proxy is realized as a builder-style path
// chain instead: Path descends one dotted segment at a time, with lazy
// per-segment child caching, and Call issues the accumulated path as an
// outbound call.
type Proxy struct {
	engine *Engine
	path   string

	mu       sync.Mutex
	children map[string]*Proxy
}

func newProxy(e *Engine, path string) *Proxy {
	return &Proxy{engine: e, path: path}
}

// Path descends into the child proxy for segment, materializing and caching
// it on first access; subsequent accesses return the same child. segment
// may itself contain literal dots, matching a Namespace key that does the
// same.
func (p *Proxy) Path(segment string) *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.children == nil {
		p.children = make(map[string]*Proxy)
	}
	if child, ok := p.children[segment]; ok {
		return child
	}

	full := segment
	if p.path != "" {
		full = p.path + "." + segment
	}
	child := newProxy(p.engine, full)
	p.children[segment] = child
	return child
}

// Call issues the proxy's accumulated dotted path as an outbound call with
// args as params. Calling the root proxy (path "") is permitted and yields
// CodeMethodNotFound from peers exposing no empty-name handler.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	return p.engine.call(ctx, p.path, args)
}

// Invoke is a convenience equivalent to chaining Path across method's
// dotted segments and then calling — this is what Context.Invoke uses so
// handlers can originate their own outbound calls while servicing an
// inbound request, which is what makes a connection genuinely
// bidirectional.
func (p *Proxy) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	target := p
	if method != "" {
		for _, seg := range strings.Split(method, ".") {
			target = target.Path(seg)
		}
	}
	return target.Call(ctx, args...)
}

// State returns the current connection-state value — one of the two
// read-only introspection accessors on an otherwise write-only proxy.
func (p *Proxy) State() State {
	return p.engine.State()
}

// Channel returns the underlying bound channel — the second of the two
// read-only introspection accessors.
func (p *Proxy) Channel() MessageChannel {
	return p.engine.Channel()
}

// Close shuts the underlying engine down, failing all pending calls with
// CodeConnectionClosed.
func (p *Proxy) Close() {
	p.engine.Close()
}
