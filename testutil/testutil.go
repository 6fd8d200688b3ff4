// Package testutil provides testing utilities for MCP servers.
//
// The test client drives the real session dispatcher in memory, so tests
// exercise the same lifecycle gating, scheduling, and error mapping as a
// served transport:
//
//	func TestMyServer(t *testing.T) {
//	    srv := mcpd.NewServer(mcpd.ServerInfo{Name: "test", Version: "1.0.0"})
//	    srv.Tool("greet").Handler(func(ctx context.Context, input GreetInput) (string, error) {
//	        return "Hello, " + input.Name, nil
//	    })
//
//	    tc := testutil.NewTestClient(t, srv)
//	    defer tc.Close()
//
//	    result, err := tc.CallTool("greet", map[string]any{"name": "World"})
//	    if err != nil || result != "Hello, World" {
//	        t.Fatalf("got %q, %v", result, err)
//	    }
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/protocol"
	"github.com/toolwire/mcpd/transport"
)

// TestClient is an in-memory client for MCP servers.
type TestClient struct {
	t       testing.TB
	handler transport.Handler
	mu      sync.Mutex
	reqID   int64
}

// NewTestClient creates a test client for the given server and completes
// the initialize handshake.
func NewTestClient(t testing.TB, srv *mcpd.Server, opts ...mcpd.ServeOption) *TestClient {
	t.Helper()

	tc := &TestClient{
		t:       t,
		handler: mcpd.NewHandler(srv, opts...),
	}

	if _, err := tc.Initialize(); err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}
	return tc
}

// NewTestClientWithHandler creates a test client around a custom handler.
// No initialize handshake is performed.
func NewTestClientWithHandler(t testing.TB, handler transport.Handler) *TestClient {
	t.Helper()
	return &TestClient{
		t:       t,
		handler: handler,
	}
}

// Close shuts the session down, draining in-flight requests.
func (tc *TestClient) Close() {
	if h, ok := tc.handler.(*mcpd.Handler); ok {
		_ = h.Shutdown(context.Background())
	}
}

func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(fmt.Sprintf("%d", tc.reqID))
}

// SendRequest sends a request and returns the response.
func (tc *TestClient) SendRequest(method string, params any) (*protocol.Response, error) {
	tc.t.Helper()

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsData = data
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      tc.nextID(),
		Method:  method,
		Params:  paramsData,
	}

	return tc.handler.HandleRequest(context.Background(), req)
}

// SendNotification sends a notification; no response is expected.
func (tc *TestClient) SendNotification(method string, params any) error {
	tc.t.Helper()

	var paramsData json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsData = data
	}

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  method,
		Params:  paramsData,
	}

	_, err := tc.handler.HandleRequest(context.Background(), req)
	return err
}

// asMap normalizes a result value into a generic map the way a wire
// client would see it.
func asMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unexpected result shape: %w", err)
	}
	return m, nil
}

func (tc *TestClient) resultMap(method string, params any) (map[string]any, error) {
	resp, err := tc.SendRequest(method, params)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("no response for %s", method)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return asMap(resp.Result)
}

// Initialize sends the initialize handshake.
func (tc *TestClient) Initialize() (map[string]any, error) {
	tc.t.Helper()

	return tc.resultMap(protocol.MethodInitialize, map[string]any{
		"protocolVersion": protocol.MCPVersion,
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "1.0.0",
		},
	})
}

func listOf(result map[string]any, key string) ([]map[string]any, error) {
	raw, ok := result[key].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type: %T", key, result[key])
	}
	items := make([]map[string]any, len(raw))
	for i, item := range raw {
		items[i], _ = item.(map[string]any)
	}
	return items, nil
}

// ListTools lists all available tools.
func (tc *TestClient) ListTools() ([]map[string]any, error) {
	tc.t.Helper()

	result, err := tc.resultMap(protocol.MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	return listOf(result, "tools")
}

// CallTool calls a tool and returns the text of its first content block.
// A failure payload is surfaced as an error.
func (tc *TestClient) CallTool(name string, args any) (string, error) {
	tc.t.Helper()

	result, err := tc.resultMap(protocol.MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	content, err := listOf(result, "content")
	if err != nil {
		return "", err
	}
	if len(content) == 0 {
		return "", fmt.Errorf("empty content array")
	}

	text, _ := content[0]["text"].(string)
	if isError, _ := result["isError"].(bool); isError {
		return text, fmt.Errorf("tool failed: %s", text)
	}
	return text, nil
}

// CallToolRaw calls a tool and returns the raw response.
func (tc *TestClient) CallToolRaw(name string, args any) (*protocol.Response, error) {
	tc.t.Helper()

	return tc.SendRequest(protocol.MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// ListResources lists all available resources.
func (tc *TestClient) ListResources() ([]map[string]any, error) {
	tc.t.Helper()

	result, err := tc.resultMap(protocol.MethodResourcesList, nil)
	if err != nil {
		return nil, err
	}
	return listOf(result, "resources")
}

// ReadResource reads a resource by URI and returns its text.
func (tc *TestClient) ReadResource(uri string) (string, error) {
	tc.t.Helper()

	result, err := tc.resultMap(protocol.MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return "", err
	}

	contents, err := listOf(result, "contents")
	if err != nil {
		return "", err
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("empty contents array")
	}

	text, _ := contents[0]["text"].(string)
	return text, nil
}

// ListPrompts lists all available prompts.
func (tc *TestClient) ListPrompts() ([]map[string]any, error) {
	tc.t.Helper()

	result, err := tc.resultMap(protocol.MethodPromptsList, nil)
	if err != nil {
		return nil, err
	}
	return listOf(result, "prompts")
}

// GetPrompt renders a prompt by name with the given arguments.
func (tc *TestClient) GetPrompt(name string, args map[string]string) (map[string]any, error) {
	tc.t.Helper()

	return tc.resultMap(protocol.MethodPromptsGet, map[string]any{
		"name":      name,
		"arguments": args,
	})
}

// SetLogLevel sets the session's minimum log level.
func (tc *TestClient) SetLogLevel(level string) error {
	tc.t.Helper()

	_, err := tc.resultMap(protocol.MethodSetLogLevel, map[string]any{"level": level})
	return err
}

// Ping sends a ping request.
func (tc *TestClient) Ping() error {
	tc.t.Helper()

	_, err := tc.resultMap(protocol.MethodPing, nil)
	return err
}

// Cancel sends a cancellation notification for the given request id.
func (tc *TestClient) Cancel(requestID string) error {
	tc.t.Helper()

	return tc.SendNotification(protocol.MethodCancelled, map[string]any{
		"requestId": json.RawMessage(requestID),
	})
}

// Shutdown sends a shutdown notification.
func (tc *TestClient) Shutdown() error {
	tc.t.Helper()
	return tc.SendNotification(protocol.MethodShutdown, nil)
}

// AssertToolExists asserts that a tool with the given name is listed.
func (tc *TestClient) AssertToolExists(name string) {
	tc.t.Helper()

	tools, err := tc.ListTools()
	if err != nil {
		tc.t.Fatalf("ListTools failed: %v", err)
	}
	for _, tool := range tools {
		if tool["name"] == name {
			return
		}
	}
	tc.t.Errorf("tool %q not found", name)
}

// AssertResourceExists asserts that a resource with the given URI template is listed.
func (tc *TestClient) AssertResourceExists(uriPattern string) {
	tc.t.Helper()

	resources, err := tc.ListResources()
	if err != nil {
		tc.t.Fatalf("ListResources failed: %v", err)
	}
	for _, res := range resources {
		if res["uri"] == uriPattern {
			return
		}
	}
	tc.t.Errorf("resource %q not found", uriPattern)
}

// AssertPromptExists asserts that a prompt with the given name is listed.
func (tc *TestClient) AssertPromptExists(name string) {
	tc.t.Helper()

	prompts, err := tc.ListPrompts()
	if err != nil {
		tc.t.Fatalf("ListPrompts failed: %v", err)
	}
	for _, prompt := range prompts {
		if prompt["name"] == name {
			return
		}
	}
	tc.t.Errorf("prompt %q not found", name)
}
