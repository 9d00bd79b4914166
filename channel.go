package drpc

import (
	"fmt"
	"reflect"
)

// Event names a MessageChannel subscriber must recognize.
const (
	EventMessage = "message"
	EventOpen    = "open"
	EventClose   = "close"
	EventError   = "error"
	EventExit    = "exit"
)

// Payload is the normalized shape delivered to a "message" subscriber: Data
// carries the nested string when the transport wraps it in an object with a
// "data" field rather than delivering a raw string directly. Both forms
// must be accepted.
type Payload struct {
	Data string
}

// MessageChannel is the capability contract an engine consumes: a write
// operation and an event subscription operation. Implementing this
// interface directly is the fast path; transports that don't can still be
// adapted via bindChannel's reflection-based probing.
type MessageChannel interface {
	// Write transmits a UTF-8 JSON-encoded frame. A non-nil error is
	// interpreted as "not currently transmittable" and triggers queuing
	// rather than failing the call outright.
	Write(message string) error

	// On subscribes handler to event (one of the Event* constants). Engines
	// call this once per event before the channel is used.
	On(event string, handler func(any))
}

// writeMethodNames are probed, in order, for a write operation on a value
// that doesn't already implement MessageChannel. "Write" is also the
// MessageChannel method name, so it's probed first for consistency.
var writeMethodNames = []string{"Write", "Send"}

// subscribeMethodNames are probed, in order, for an event-subscription
// operation.
var subscribeMethodNames = []string{"On", "AddEventListener", "Subscribe"}

// bindChannel adapts ch into a MessageChannel. If ch already satisfies the
// interface, it's returned unchanged. Otherwise bindChannel probes
// writeMethodNames and subscribeMethodNames via reflection and binds
// whichever methods are present, duck-typing an arbitrary transport value
// into the shape the engine needs. This is the one place in the engine
// reflection is the right tool: the channel's concrete type is unknown
// ahead of time and may come from any of several unrelated transport
// libraries.
func bindChannel(ch any) (MessageChannel, error) {
	if mc, ok := ch.(MessageChannel); ok {
		return mc, nil
	}

	write, err := bindWriter(ch)
	if err != nil {
		return nil, err
	}
	subscribe, err := bindSubscriber(ch)
	if err != nil {
		return nil, err
	}
	return &boundChannel{write: write, subscribe: subscribe}, nil
}

// boundChannel adapts a duck-typed channel value into MessageChannel.
type boundChannel struct {
	write     func(string) error
	subscribe func(string, func(any))
}

func (b *boundChannel) Write(message string) error        { return b.write(message) }
func (b *boundChannel) On(event string, handler func(any)) { b.subscribe(event, handler) }

func bindWriter(ch any) (write func(string) error, err error) {
	val := reflect.ValueOf(ch)
	for _, name := range writeMethodNames {
		m := val.MethodByName(name)
		if !m.IsValid() {
			continue
		}
		mt := m.Type()
		if mt.NumIn() != 1 || mt.In(0).Kind() != reflect.String {
			continue
		}
		if mt.NumOut() != 1 || !mt.Out(0).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			continue
		}
		method := m
		return func(s string) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = fmt.Errorf("drpc: channel write panicked: %v", r)
				}
			}()
			out := method.Call([]reflect.Value{reflect.ValueOf(s)})
			if e, ok := out[0].Interface().(error); ok && e != nil {
				return e
			}
			return nil
		}, nil
	}
	return nil, fmt.Errorf("drpc: channel %T exposes no compatible write method (tried %v)", ch, writeMethodNames)
}

func bindSubscriber(ch any) (subscribe func(string, func(any)), err error) {
	val := reflect.ValueOf(ch)
	anyHandler := reflect.TypeOf((func(any))(nil))
	stringHandler := reflect.TypeOf((func(string))(nil))

	for _, name := range subscribeMethodNames {
		m := val.MethodByName(name)
		if !m.IsValid() {
			continue
		}
		mt := m.Type()
		if mt.NumIn() != 2 || mt.In(0).Kind() != reflect.String {
			continue
		}
		switch mt.In(1) {
		case anyHandler:
			method := m
			return func(event string, handler func(any)) {
				method.Call([]reflect.Value{
					reflect.ValueOf(event),
					reflect.ValueOf(handler),
				})
			}, nil
		case stringHandler:
			method := m
			return func(event string, handler func(any)) {
				wrapped := func(s string) { handler(s) }
				method.Call([]reflect.Value{
					reflect.ValueOf(event),
					reflect.ValueOf(wrapped),
				})
			}, nil
		}
	}
	return nil, fmt.Errorf("drpc: channel %T exposes no compatible subscribe method (tried %v)", ch, subscribeMethodNames)
}

// normalizePayload extracts the frame string from whatever the "message"
// handler was invoked with: a raw string, a map[string]any with a string
// "data" entry, or a struct (or pointer to one) with a string Data field
// (the object-wrapped form engines must also accept). Methods named Data
// are not consulted.
func normalizePayload(v any) (string, bool) {
	switch p := v.(type) {
	case string:
		return p, true
	case Payload:
		return p.Data, true
	case *Payload:
		return p.Data, true
	case map[string]any:
		if d, ok := p["data"].(string); ok {
			return d, true
		}
	}

	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Struct {
		f := val.FieldByName("Data")
		if f.IsValid() && f.Kind() == reflect.String {
			return f.String(), true
		}
	}
	return "", false
}
