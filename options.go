package drpc

import (
	"time"

	"github.com/charmbracelet/log"
)

// Default engine configuration values.
const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
)

// Config holds resolved construction-time configuration for an Engine.
type Config struct {
	// Timeout is the per-call deadline.
	Timeout time.Duration

	// MaxRetries bounds reconnection attempts.
	MaxRetries int

	// RetryDelay is the pause between reconnection attempts.
	RetryDelay time.Duration

	// Opened marks the supplied channel as already open, skipping the
	// CONNECTING → wait-for-"open"-event step.
	Opened bool

	// Routing is the routing tree for inbound dispatch. Nil disables
	// inbound dispatch entirely.
	Routing Node

	// OnStateChange is invoked on every connection-state transition.
	OnStateChange func(old, new State)

	// OnParseError is an optional diagnostic hook for unparseable inbound
	// frames.
	OnParseError func(raw []byte, err error)

	// OnDroppedResponse is an optional diagnostic hook for responses whose
	// id has no matching pending call.
	OnDroppedResponse func(id int64)

	// Logger, if set, receives structured debug logging of dispatch,
	// timeout, and reconnection events. Nil (the default) disables logging
	// entirely.
	Logger *log.Logger
}

// Option configures a Config at construction time.
type Option func(*Config)

// WithTimeout sets the per-call deadline. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithMaxRetries sets the maximum number of reconnection attempts.
// Negative values are ignored.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

// WithRetryDelay sets the pause between reconnection attempts. Values <= 0
// are ignored.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RetryDelay = d
		}
	}
}

// WithOpened marks the supplied channel as already open.
func WithOpened(opened bool) Option {
	return func(c *Config) { c.Opened = opened }
}

// WithRouting sets the routing tree for inbound dispatch.
func WithRouting(root Node) Option {
	return func(c *Config) { c.Routing = root }
}

// WithOnStateChange sets the connection-state observer.
func WithOnStateChange(fn func(old, new State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithOnParseError sets the diagnostic hook for unparseable inbound frames.
func WithOnParseError(fn func(raw []byte, err error)) Option {
	return func(c *Config) { c.OnParseError = fn }
}

// WithOnDroppedResponse sets the diagnostic hook for unmatched responses.
func WithOnDroppedResponse(fn func(id int64)) Option {
	return func(c *Config) { c.OnDroppedResponse = fn }
}

// WithLogger enables structured debug logging via a charmbracelet/log
// logger. Pass nil to disable (the default).
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func resolveConfig(opts ...Option) Config {
	c := Config{
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
