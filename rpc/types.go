// Package rpc serves program state and transaction submission over
// JSON-RPC 2.0, plus a websocket stream of committed events.
package rpc

import (
	"encoding/json"

	"github.com/tolelom/dealchain/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. Data carries the program error when a
// submitted or simulated instruction was rejected.
type Error struct {
	Code    int                `json:"code"`
	Message string             `json:"message"`
	Data    *core.ProgramError `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeNotFound       = -32001
	CodeRateLimited    = -32002
	CodeRejected       = -32003
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
