package drpc

import (
	"sync"
	"time"
)

// callState is the lifecycle state of a pendingCall.
type callState int

const (
	callQueued callState = iota
	callInFlight
	callComplete
)

// pendingCall is local bookkeeping for one outbound call. Every pendingCall
// is referenced from exactly one of Engine.queue (callQueued) or
// Engine.inFlight (callInFlight) until it completes, after which it is
// referenced from neither.
type pendingCall struct {
	id     int64
	method string
	params []any

	timer *time.Timer
	done  chan struct{}

	once   sync.Once
	result pendingResult

	state callState
}

// pendingResult is the single value a pendingCall is completed with —
// either a successful value or an error, never both.
type pendingResult struct {
	value any
	err   *CallError
}

// complete resolves pc exactly once; later calls are no-ops, regardless of
// which of {response, timeout, disconnect} reaches it first.
func (pc *pendingCall) complete(res pendingResult) {
	pc.once.Do(func() {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.result = res
		pc.state = callComplete
		close(pc.done)
	})
}
