package protocol

import "encoding/json"

// JSONRPCVersion is the JSON-RPC protocol version.
const JSONRPCVersion = "2.0"

// Request represents a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification returns true if this request has no ID (is a notification).
// Notifications are never answered with a Response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// IDString returns the request ID as a correlation key. The key is the
// raw JSON text, so the string id "7" and the number id 7 are distinct
// keys even though both render as 7 in messages. Returns empty string
// for notifications.
func (r *Request) IDString() string {
	return string(r.ID)
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewResponse creates a successful response echoing the given request ID.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response echoing the given request ID.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   err,
	}
}

// Marshal encodes the notification as a single JSON object without framing.
func (n *Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

// NewNotification creates a notification with marshaled params.
func NewNotification(method string, params any) (*Notification, error) {
	var data json.RawMessage
	if params != nil {
		var err error
		data, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}
	return &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  data,
	}, nil
}
