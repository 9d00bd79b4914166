package drpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for local engine-level failures (not on-wire RPC errors —
// see CallError for those).
var (
	// ErrClosed indicates an operation was attempted on a CLOSED engine.
	ErrClosed = errors.New("drpc: engine closed")

	// ErrNotConnected indicates Call was attempted and queuing is disabled,
	// or a write was attempted with no channel bound yet.
	ErrNotConnected = errors.New("drpc: not connected")

	// ErrNoRouting indicates an inbound request arrived but the engine has
	// no routing tree configured.
	ErrNoRouting = errors.New("drpc: no routing configured")
)

// CallError is the local carrier for an RPC failure: a handler-raised error,
// a mapped wire error response, or an engine-level failure (timeout,
// disconnect) surfaced through the same shape so all three are handled
// uniformly by callers.
type CallError struct {
	Message string
	Code    int
	Data    any
	Type    ErrorType
}

// NewCallError builds a CallError, deriving Type from Code per the standard
// catalogue in codes.go. Use this for engine-raised errors; handlers that
// want a custom Type should construct a CallError literal directly.
func NewCallError(code int, message string, data any) *CallError {
	return &CallError{
		Message: message,
		Code:    code,
		Data:    data,
		Type:    typeForCode(code),
	}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("drpc: code %d: %s", e.Code, e.Message)
}

// Is reports whether target is a *CallError with the same Code, letting
// callers write errors.Is(err, &CallError{Code: drpc.CodeRequestTimeout}).
func (e *CallError) Is(target error) bool {
	var other *CallError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// handlerError wraps an arbitrary handler-returned error into the
// frame-level error shape: a handler error carrying an explicit
// Code/Message (via *CallError) is forwarded verbatim; anything else is
// classified by error kind per spec.md §4.4 (a JSON syntax error maps to
// the parse-error code, a JSON type mismatch or a failed type assertion
// maps to the invalid-params code, anything else collapses to the generic
// internal-error code), carrying the error's own message in every case.
func handlerError(err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	code, typ := classifyErrorKind(err)
	return &CallError{Message: err.Error(), Code: code, Type: typ}
}

// classifyErrorKind maps err's underlying kind to a standard code/type pair
// per spec.md §4.4: SyntaxError → -32700/PROTOCOL, TypeError (a JSON
// type-mismatch, or Go's closest analogue — a failed type assertion) →
// -32602/PROTOCOL, anything else → -32603/SYSTEM.
func classifyErrorKind(err error) (int, ErrorType) {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return CodeParseError, ErrorTypeProtocol
	}
	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeErr) {
		return CodeInvalidParams, ErrorTypeProtocol
	}
	var assertErr *runtime.TypeAssertionError
	if errors.As(err, &assertErr) {
		return CodeInvalidParams, ErrorTypeProtocol
	}
	return CodeInternalError, ErrorTypeSystem
}

// recoveredPanicError converts a recover()ed value into an error so it can
// flow through the same handlerError classification as a returned error. A
// panic whose value already is an error (e.g. *runtime.TypeAssertionError,
// which is what a failed type assertion like ctx.Params[0].(float64)
// actually panics with) is preserved so classifyErrorKind can still match
// it; anything else is wrapped with its %v text.
func recoveredPanicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("drpc: handler panic: %v", r)
}
