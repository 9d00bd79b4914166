package drpc

import (
	"context"
	"testing"
)

func TestProxy_PathCachesChildren(t *testing.T) {
	root := newProxy(nil, "")
	a1 := root.Path("a")
	a2 := root.Path("a")
	if a1 != a2 {
		t.Error("Path(\"a\") returned distinct instances on repeat access, want cached")
	}
	if a1.path != "a" {
		t.Errorf("path = %q, want %q", a1.path, "a")
	}
}

func TestProxy_PathBuildsDottedName(t *testing.T) {
	root := newProxy(nil, "")
	leaf := root.Path("user").Path("profile").Path("get")
	if leaf.path != "user.profile.get" {
		t.Errorf("path = %q, want %q", leaf.path, "user.profile.get")
	}
}

func TestProxy_RepeatedPathChainReturnsCachedNode(t *testing.T) {
	root := newProxy(nil, "")
	leaf := root.Path("user")
	child := leaf.Path("profile").Path("get")
	// Invoke walks this same Path cache segment by segment, so a repeated
	// Path chain must land on the same cached node rather than a new proxy.
	again := leaf.Path("profile").Path("get")
	if child != again {
		t.Error("Path chain did not produce a stable cached node")
	}
}

func TestProxy_CallRoutesThroughEngine(t *testing.T) {
	ch := newFakeChannel()
	e, err := newEngine(MessageChannel(ch), WithOpened(true), WithTimeout(testTimeout))
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		raw, ok := waitForWrite(ch)
		if !ok {
			return
		}
		f, _ := decodeFrame([]byte(raw))
		resp, _ := encodeSuccess(*f.ID, "pong")
		ch.emit(EventMessage, string(resp))
	}()

	got, err := e.proxy.Path("ping").Call(context.Background())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %v, want pong", got)
	}
}

func TestProxy_InvokeRoutesThroughEngine(t *testing.T) {
	ch := newFakeChannel()
	e, err := newEngine(MessageChannel(ch), WithOpened(true), WithTimeout(testTimeout))
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		raw, ok := waitForWrite(ch)
		if !ok {
			return
		}
		f, _ := decodeFrame([]byte(raw))
		if *f.Method != "user.profile.get" {
			t.Errorf("method = %q, want user.profile.get", *f.Method)
		}
		resp, _ := encodeSuccess(*f.ID, 42.0)
		ch.emit(EventMessage, string(resp))
	}()

	got, err := e.proxy.Invoke(context.Background(), "user.profile.get")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != 42.0 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestProxy_StateAndChannelDelegateToEngine(t *testing.T) {
	ch := newFakeChannel()
	e, err := newEngine(MessageChannel(ch), WithOpened(true))
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.proxy.State() != StateConnected {
		t.Errorf("State() = %v, want StateConnected", e.proxy.State())
	}
	if e.proxy.Channel() == nil {
		t.Error("Channel() returned nil")
	}
}
