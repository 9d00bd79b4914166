package drpc

// Context is the per-call mutable record passed to every handler in a
// routing chain. Handlers may mutate Params in place to propagate
// transformed arguments to the next element of a Chain.
type Context struct {
	// ID is the JSON-RPC id of the inbound request this call is serving.
	ID int64

	// Method is the remaining dotted name after prefix consumption by the
	// router. Empty once the router has fully consumed the path.
	Method string

	// OriginalMethod is the full dotted method name as received, before any
	// prefix consumption, so a handler several namespace levels deep can
	// still recover the name the caller actually used.
	OriginalMethod string

	// Params is the ordered argument sequence. Handlers may mutate this
	// slice; mutations are visible to later elements of the same Chain.
	Params []any

	// Invoke is the engine's outbound proxy, letting a handler originate its
	// own calls back into the peer while servicing an inbound request —
	// this is the mechanism that makes the engine bi-directional.
	Invoke *Proxy
}

// clone returns a shallow copy of ctx with its own Method, used when the
// router descends into a nested namespace so sibling branches don't observe
// each other's prefix consumption.
func (ctx *Context) clone() *Context {
	cp := *ctx
	return &cp
}
