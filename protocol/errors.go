// Package protocol implements the MCP protocol layer including JSON-RPC 2.0.
package protocol

import "fmt"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP-specific error codes. These stay stable for the lifetime of a session.
const (
	CodeCapabilityNotFound = -32001
	CodeNotReady           = -32002
	CodeShuttingDown       = -32003
	CodeTimeout            = -32004
	CodeRateLimited        = -32005
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("mcp: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithData returns a copy of the error with additional data attached.
func (e *Error) WithData(data any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    data,
	}
}

// NewParseError creates a parse error (-32700).
func NewParseError(msg string) *Error {
	return &Error{Code: CodeParseError, Message: msg}
}

// NewInvalidRequest creates an invalid request error (-32600).
func NewInvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(msg string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: msg}
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

// NewInternalError creates an internal error (-32603).
func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: msg}
}

// NewCapabilityNotFound creates a capability not found error (-32001).
// Used when the named tool, resource, or prompt is not registered.
func NewCapabilityNotFound(msg string) *Error {
	return &Error{Code: CodeCapabilityNotFound, Message: msg}
}

// NewNotReady creates a not ready error (-32002). Returned for any
// capability request received before the initialize handshake completes.
func NewNotReady(msg string) *Error {
	return &Error{Code: CodeNotReady, Message: msg}
}

// NewShuttingDown creates a shutting down error (-32003). Returned for
// requests that arrive after shutdown has begun; their handlers never run.
func NewShuttingDown(msg string) *Error {
	return &Error{Code: CodeShuttingDown, Message: msg}
}

// NewTimeout creates a timeout error (-32004). The handler may still be
// running when this is returned; only the wait is abandoned.
func NewTimeout(msg string) *Error {
	return &Error{Code: CodeTimeout, Message: msg}
}

// NewRateLimited creates a rate limited error (-32005).
func NewRateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}
