package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a single wire frame into a Request (or notification).
//
// On failure it returns an error Response instead: invalid JSON yields a
// ParseError, a structurally invalid envelope yields an InvalidRequest.
// The response carries the request ID when it could be recovered from the
// frame; when it could not, the response ID is nil and the caller must not
// send it (a reply cannot be correlated to an unidentifiable request).
//
// Unrecognized methods decode successfully; rejecting them is the
// dispatcher's job and uses a different error code than a parse failure.
func Decode(data []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// The envelope may still be valid JSON with fields of the wrong
		// shape. Recover the ID if possible so the error can be correlated.
		id := recoverID(data)
		if json.Valid(data) {
			return nil, NewErrorResponse(id, NewInvalidRequest(err.Error()))
		}
		return nil, NewErrorResponse(id, NewParseError(err.Error()))
	}

	if req.JSONRPC != JSONRPCVersion {
		return nil, NewErrorResponse(req.ID,
			NewInvalidRequest(fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC)))
	}
	if req.Method == "" {
		return nil, NewErrorResponse(req.ID, NewInvalidRequest("missing method"))
	}
	if len(req.ID) > 0 && !validID(req.ID) {
		// The ID itself is malformed, so it cannot correlate a reply.
		return nil, NewErrorResponse(nil, NewInvalidRequest("request id must be a string or number"))
	}

	return &req, nil
}

// Encode serializes a response for the wire. Framing (e.g. the trailing
// newline) is owned by the transport, not the codec.
func Encode(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// recoverID extracts a best-effort request ID from a frame that failed to
// decode as an envelope.
func recoverID(data []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}
	if !validID(probe.ID) {
		return nil
	}
	return probe.ID
}

// validID reports whether raw is a legal request ID: a JSON string or number.
func validID(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '"':
		var s string
		return json.Unmarshal(trimmed, &s) == nil
	case '{', '[', 't', 'f', 'n':
		return false
	default:
		var n json.Number
		return json.Unmarshal(trimmed, &n) == nil
	}
}
