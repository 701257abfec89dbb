package domain

import (
	"bytes"
	"encoding/json"
)

const (
	JSONRPCVersion = "2.0"
	MethodToolCall = "tools/call"
)

var nullID = json.RawMessage("null")

// Request is one inbound envelope. ID is kept raw so it can be echoed
// verbatim whether the caller sent a string or a number.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// HasID reports whether the caller supplied a non-null correlation token.
func (r Request) HasID() bool {
	trimmed := bytes.TrimSpace(r.ID)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, nullID)
}

// ToolCallParams is the params object of a tools/call request.
type ToolCallParams struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult is the result object of a successful tools/call.
type ToolCallResult struct {
	Tool        string         `json:"tool"`
	Output      map[string]any `json:"output"`
	Diagnostics []string       `json:"diagnostics,omitempty"`
}

// Response is one outbound envelope. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  *ToolCallResult `json:"result,omitempty"`
	Error   *ProtocolError  `json:"error,omitempty"`
}

// NewResultResponse wraps a tool result in a success envelope.
func NewResultResponse(id json.RawMessage, result ToolCallResult) Response {
	if result.Output == nil {
		result.Output = map[string]any{}
	}
	return Response{JSONRPC: JSONRPCVersion, ID: normalizeID(id), Result: &result}
}

// NewErrorResponse wraps a protocol error in an error envelope.
func NewErrorResponse(id json.RawMessage, perr *ProtocolError) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: normalizeID(id), Error: perr}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(id)) == 0 {
		return nullID
	}
	return id
}

// InvokeResponse is what a dispatched tool invocation yields before it is
// wrapped into an envelope.
type InvokeResponse struct {
	Tool        string
	Output      map[string]any
	Diagnostics []string
}
