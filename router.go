package drpc

import (
	"strings"
	"sync"
)

// Node is a recursive routing-tree variant. The four concrete types below
// are the only implementations; Dispatch type switches over them rather
// than dispatching through a closed interface method, treating the node
// kinds as a tagged sum traversed by pattern matching.
type Node interface {
	node()
}

// HandlerFunc is a terminal routing-tree node: a callable invoked with the
// resolved invocation context.
type HandlerFunc func(ctx *Context) (any, error)

func (HandlerFunc) node() {}

// Chain is an ordered middleware pipeline executed on a shared Context. Only
// the last element may return a non-nil value; see executeChain.
type Chain []Node

func (Chain) node() {}

// Namespace maps a name segment — which may itself contain dots — to a
// child Node. Resolution performs longest-prefix matching against these
// keys.
type Namespace map[string]Node

func (Namespace) node() {}

// Literal is a terminal node that always resolves to the same stored value,
// regardless of arguments. A Literal with a nil Value returns JSON null.
type Literal struct {
	Value any
}

func (Literal) node() {}

// Router wraps an immutable routing tree with a resolution cache mapping
// fully-qualified dotted method names to their resolved terminal node and
// unconsumed suffix. The zero Router has no routes and always fails with
// CodeMethodNotFound: an engine with no routing tree simply can't serve
// inbound calls.
type Router struct {
	root  Node
	cache sync.Map // string -> routeEntry
}

type routeEntry struct {
	terminal  Node
	remaining string
}

// NewRouter wraps root for dispatch. A nil root disables inbound dispatch
// entirely.
func NewRouter(root Node) *Router {
	return &Router{root: root}
}

// Dispatch resolves ctx.Method against the routing tree and invokes the
// resulting handler or chain, returning its value or a *CallError.
func (r *Router) Dispatch(ctx *Context) (any, error) {
	if r == nil || r.root == nil {
		return nil, NewCallError(CodeMethodNotFound, messageForCode(CodeMethodNotFound), nil)
	}

	full := ctx.Method
	var entry routeEntry
	if cached, ok := r.cache.Load(full); ok {
		entry = cached.(routeEntry)
	} else {
		terminal, remaining, cerr := resolveFrom(r.root, full)
		if cerr != nil {
			return nil, cerr
		}
		entry = routeEntry{terminal: terminal, remaining: remaining}
		r.cache.Store(full, entry)
	}

	resolved := ctx.clone()
	resolved.Method = entry.remaining
	return invokeNode(entry.terminal, resolved)
}

// resolveFrom descends node against method using longest-prefix matching,
// recursing into child Namespaces until a Handler, Chain, or Literal
// terminal is reached. A non-Namespace node is already a terminal and
// consumes nothing.
func resolveFrom(n Node, method string) (terminal Node, remaining string, cerr *CallError) {
	ns, ok := n.(Namespace)
	if !ok {
		return n, method, nil
	}

	if method == "" {
		if child, ok := ns[""]; ok {
			return resolveFrom(child, "")
		}
		return nil, "", NewCallError(CodeMethodNotFound, messageForCode(CodeMethodNotFound), nil)
	}

	segments := strings.Split(method, ".")
	for p := len(segments); p >= 1; p-- {
		key := strings.Join(segments[:p], ".")
		child, ok := ns[key]
		if !ok {
			continue
		}
		return resolveFrom(child, strings.Join(segments[p:], "."))
	}
	return nil, "", NewCallError(CodeMethodNotFound, messageForCode(CodeMethodNotFound), nil)
}

// invokeNode executes a resolved terminal node. Namespace is handled here
// too (rather than only by resolveFrom) because a Chain element may itself
// be a Namespace, resolved fresh against the *current* ctx.Method — a chain
// can nest a sub-tree, not just terminal handlers.
func invokeNode(n Node, ctx *Context) (any, error) {
	switch v := n.(type) {
	case HandlerFunc:
		return callHandler(v, ctx)
	case Literal:
		return v.Value, nil
	case Chain:
		return executeChain(v, ctx)
	case Namespace:
		terminal, remaining, cerr := resolveFrom(v, ctx.Method)
		if cerr != nil {
			return nil, cerr
		}
		resolved := ctx.clone()
		resolved.Method = remaining
		return invokeNode(terminal, resolved)
	default:
		return nil, NewCallError(CodeInternalError, "drpc: unknown routing node type", nil)
	}
}

// callHandler invokes h, recovering a panic (most commonly a failed type
// assertion against an untyped ctx.Params element, e.g. ctx.Params[0].
// (float64)) so it never escapes the dispatch path: a handler failure, panic
// or returned error alike, is local to the one call and must never crash
// the engine. The recovered value is classified through the same
// handlerError path a returned error would take.
func callHandler(h HandlerFunc, ctx *Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = handlerError(recoveredPanicError(r))
		}
	}()
	return h(ctx)
}

// executeChain runs each element of chain against the same ctx in order.
// Params mutations by one element are visible to the next because ctx is
// shared, not cloned, across chain elements. Only the last element may
// return a non-nil value.
func executeChain(chain Chain, ctx *Context) (any, error) {
	var result any
	for i, elem := range chain {
		v, err := invokeNode(elem, ctx)
		if err != nil {
			return nil, err
		}
		if i < len(chain)-1 {
			if v != nil {
				return nil, NewCallError(CodeInternalError,
					"Only the last handler in the chain can return a value", nil)
			}
			continue
		}
		result = v
	}
	return result, nil
}
