package drpc

import "context"

// Open creates an Engine bound to channel and returns its outbound Proxy.
// channel may be a MessageChannel, a func() (MessageChannel, error) /
// func() (any, error) factory enabling reconnection, or any value
// bindChannel can adapt via reflection.
func Open(channel any, opts ...Option) (*Proxy, error) {
	e, err := newEngine(channel, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(context.Background()); err != nil {
		return nil, err
	}
	return e.proxy, nil
}

// Handler returns a convenience constructor that, given a channel, builds
// an Engine with Opened(true) and the supplied routing tree, exposing its
// inbound server side. Additional opts (e.g. WithTimeout) are applied after
// Opened/Routing, so callers may also override those two.
func Handler(routing Node, opts ...Option) func(channel any) (*Proxy, error) {
	base := append([]Option{WithOpened(true), WithRouting(routing)}, opts...)
	return func(channel any) (*Proxy, error) {
		return Open(channel, base...)
	}
}
