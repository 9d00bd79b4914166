// Package drpc implements a lightweight, transport-agnostic, bi-directional
// JSON-RPC 2.0 engine.
//
// A single Engine, bound to one MessageChannel, simultaneously acts as
// client (issuing outbound calls via its Proxy) and server (serving inbound
// calls from the peer via a routing Node). Method names are dotted and
// resolved against the routing tree with longest-prefix matching; middleware
// chains share a mutable Context so earlier elements can transform
// parameters for later ones.
//
// The primary types defined in this package are:
//
//   - [Proxy] — the outbound, dynamically-pathed call surface
//   - [Engine] — owns the channel, pending calls, and connection state
//   - [Context] — the per-call record passed to every handler
//   - [Node] — the recursive routing-tree variant (Handler/Chain/Namespace/Literal)
//   - [CallError] — the local error carrier for RPC failures
//
// Quick start:
//
//	routing := drpc.Namespace{
//	    "add": drpc.HandlerFunc(func(ctx *drpc.Context) (any, error) {
//	        a, b := ctx.Params[0].(float64), ctx.Params[1].(float64)
//	        return a + b, nil
//	    }),
//	}
//	proxy, err := drpc.Open(channel, drpc.WithRouting(routing))
//	sum, err := proxy.Path("add").Call(ctx, 1, 2)
package drpc
