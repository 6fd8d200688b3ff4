// Package protocol defines the MCP JSON-RPC 2.0 envelopes, error codes,
// and the wire codec.
//
// This package provides the low-level protocol structures used by mcpd.
// Most users should use the higher-level mcpd package instead.
//
// # Envelopes
//
// Three message shapes cross the wire: Request (has an ID, expects a
// Response), Notification (no ID, never answered), and Response (echoes
// exactly one Request's ID with either a result or an error).
//
// # Codec
//
// Decode turns one frame into a Request, or an error Response when the
// frame is malformed:
//
//	req, errResp := protocol.Decode(line)
//	if errResp != nil {
//	    // send errResp only if errResp.ID is set; an unidentifiable
//	    // request cannot be answered
//	}
//
// A frame that is not valid JSON produces a ParseError (-32700); a frame
// that is valid JSON but not a valid envelope produces an InvalidRequest
// (-32600). A well-formed envelope with an unknown method decodes fine and
// is rejected later by the dispatcher with MethodNotFound (-32601).
//
// # Error Codes
//
// Standard JSON-RPC 2.0 codes plus MCP-specific codes:
//
//	CodeParseError         = -32700 // invalid JSON
//	CodeInvalidRequest     = -32600 // invalid envelope
//	CodeMethodNotFound     = -32601 // unknown method
//	CodeInvalidParams      = -32602 // schema validation failure
//	CodeInternalError      = -32603 // unexpected server failure
//	CodeCapabilityNotFound = -32001 // unknown tool/resource/prompt
//	CodeNotReady           = -32002 // request before initialize
//	CodeShuttingDown       = -32003 // request after shutdown began
//	CodeTimeout            = -32004 // handler exceeded its deadline
//	CodeRateLimited        = -32005 // rate limit exceeded
package protocol
