package drpc

import "encoding/json"

// wireFrame is the generic inbound shape every decoded message is first
// unmarshaled into, before classification. Method uses *string (rather than
// string) so an explicitly-present empty method name ("" — a valid call to
// the root proxy) is distinguishable from an absent one.
type wireFrame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int64          `json:"id,omitempty"`
	Method  *string         `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// requestFrame is the outbound shape for a call.
type requestFrame struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// successFrame is the outbound shape for a successful response.
type successFrame struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Result  any    `json:"result"`
}

// errorFrame is the outbound shape for a failed response.
type errorFrame struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      int64      `json:"id"`
	Error   *wireError `json:"error"`
}

// frameKind is the result of classifying a decoded wireFrame.
type frameKind int

const (
	frameInvalid frameKind = iota
	frameRequest
	frameResponse
)

// classify determines whether f is a request or a response: a string method
// field (even "") means request; otherwise id presence means response;
// neither means the frame is malformed.
func (f *wireFrame) classify() frameKind {
	if f.Method != nil {
		return frameRequest
	}
	if f.ID != nil {
		return frameResponse
	}
	return frameInvalid
}

// decodeFrame parses one JSON-encoded message. A JSON syntax error is
// returned verbatim; the caller is responsible for producing the id -1 /
// -32700 error response — decodeFrame itself never fabricates a frame for
// malformed JSON.
func decodeFrame(raw []byte) (*wireFrame, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// decodeParams validates and decodes the params field of an inbound request
// into an ordered sequence of argument values: absent → empty sequence,
// present-but-not-array → -32602.
func decodeParams(raw json.RawMessage) ([]any, *CallError) {
	if len(raw) == 0 {
		return []any{}, nil
	}
	var rawElems []json.RawMessage
	if err := json.Unmarshal(raw, &rawElems); err != nil {
		return nil, NewCallError(CodeInvalidParams, messageForCode(CodeInvalidParams), nil)
	}
	params := make([]any, len(rawElems))
	for i, elem := range rawElems {
		var v any
		if err := json.Unmarshal(elem, &v); err != nil {
			return nil, NewCallError(CodeInvalidParams, messageForCode(CodeInvalidParams), nil)
		}
		params[i] = v
	}
	return params, nil
}

// encodeSuccess builds the on-wire bytes for a successful response. A nil
// result is encoded as JSON null.
func encodeSuccess(id int64, result any) ([]byte, error) {
	return json.Marshal(successFrame{JSONRPC: "2.0", ID: id, Result: result})
}

// encodeError builds the on-wire bytes for an error response.
func encodeError(id int64, ce *CallError) ([]byte, error) {
	return json.Marshal(errorFrame{
		JSONRPC: "2.0",
		ID:      id,
		Error: &wireError{
			Code:    ce.Code,
			Message: ce.Message,
			Data:    ce.Data,
		},
	})
}

// encodeRequest builds the on-wire bytes for an outbound call.
func encodeRequest(id int64, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(requestFrame{JSONRPC: "2.0", ID: id, Method: method, Params: params})
}

// parseErrorResponse builds the fixed id -1 / -32700 response for an
// unparseable inbound frame.
func parseErrorResponse() []byte {
	b, err := encodeError(-1, NewCallError(CodeParseError, messageForCode(CodeParseError), nil))
	if err != nil {
		// encodeError over fixed, JSON-safe inputs cannot fail.
		panic("drpc: parseErrorResponse: " + err.Error())
	}
	return b
}
