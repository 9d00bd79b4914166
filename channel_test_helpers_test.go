package drpc

import (
	"sync"
	"time"
)

// testTimeout is the per-call timeout used by tests that need the engine's
// real timeout path to be fast without risking flakes under load.
const testTimeout = 200 * time.Millisecond

// fakeChannel is a minimal in-memory MessageChannel used across the test
// suite. Write optionally forwards directly to a connected peer, letting
// tests wire up a pair of engines without any real transport. notify
// reports each write as it happens, so tests can synchronize on "the engine
// has sent its request" without polling.
type fakeChannel struct {
	mu       sync.Mutex
	handlers map[string][]func(any)
	writes   []string
	writeErr error
	peer     *fakeChannel
	closed   bool
	notify   chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: make(map[string][]func(any)),
		notify:   make(chan string, 64),
	}
}

// waitForWrite blocks until ch records a write or the deadline passes.
func waitForWrite(ch *fakeChannel) (string, bool) {
	select {
	case s := <-ch.notify:
		return s, true
	case <-time.After(2 * time.Second):
		return "", false
	}
}

// connectFakeChannels returns a pair of channels where a write on one
// synchronously delivers a "message" event to the other, modeling a live
// bidirectional connection between two engines.
func connectFakeChannels() (*fakeChannel, *fakeChannel) {
	a := newFakeChannel()
	b := newFakeChannel()
	a.peer = b
	b.peer = a
	return a, b
}

func (f *fakeChannel) Write(message string) error {
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.writes = append(f.writes, message)
	peer := f.peer
	f.mu.Unlock()

	select {
	case f.notify <- message:
	default:
	}

	if peer != nil {
		peer.emit(EventMessage, message)
	}
	return nil
}

func (f *fakeChannel) On(event string, handler func(any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], handler)
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) emit(event string, v any) {
	f.mu.Lock()
	hs := append([]func(any){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(v)
	}
}

func (f *fakeChannel) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeChannel) lastWrite() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return "", false
	}
	return f.writes[len(f.writes)-1], true
}

func (f *fakeChannel) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}
