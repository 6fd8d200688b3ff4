package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/toolwire/mcpd/client"
	"github.com/toolwire/mcpd/protocol"
)

func TestNew(t *testing.T) {
	t.Run("creates client with transport", func(t *testing.T) {
		c := client.New(&mockTransport{})
		if c == nil {
			t.Fatal("expected client to be created")
		}
		if c.ServerInfo() != nil {
			t.Error("expected nil server info before initialize")
		}
	})

	t.Run("creates client with options", func(t *testing.T) {
		c := client.New(&mockTransport{},
			client.WithTimeout(5*time.Second),
			client.WithClientInfo("test-client", "1.0.0"),
			client.WithProtocolVersion("2024-11-05"),
		)
		if c == nil {
			t.Fatal("expected client to be created")
		}
	})
}

func TestClientInitialize(t *testing.T) {
	t.Run("performs handshake", func(t *testing.T) {
		transport := &mockTransport{
			responses: []protocol.Response{
				{
					JSONRPC: "2.0",
					ID:      json.RawMessage(`1`),
					Result: map[string]any{
						"protocolVersion": "2024-11-05",
						"serverInfo": map[string]any{
							"name":    "test-server",
							"version": "1.0.0",
						},
						"capabilities": map[string]any{
							"tools":   map[string]any{},
							"logging": map[string]any{},
						},
					},
				},
			},
		}

		c := client.New(transport)
		info, err := c.Initialize(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if info.Name != "test-server" {
			t.Errorf("server name = %q, want %q", info.Name, "test-server")
		}
		if info.ProtocolVersion != "2024-11-05" {
			t.Errorf("protocol version = %q", info.ProtocolVersion)
		}
		if !info.Capabilities.Tools || !info.Capabilities.Logging {
			t.Errorf("unexpected capabilities: %+v", info.Capabilities)
		}
		if info.Capabilities.Resources {
			t.Error("resources capability should be absent")
		}
		if got := c.ServerInfo(); got == nil || got.Name != "test-server" {
			t.Errorf("cached server info = %+v", got)
		}
	})

	t.Run("returns error on failed handshake", func(t *testing.T) {
		transport := &mockTransport{
			responses: []protocol.Response{
				{
					JSONRPC: "2.0",
					ID:      json.RawMessage(`1`),
					Error:   protocol.NewInvalidRequest("bad handshake"),
				},
			},
		}

		c := client.New(transport)
		if _, err := c.Initialize(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestClientListTools(t *testing.T) {
	transport := &mockTransport{
		responses: []protocol.Response{
			{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`1`),
				Result: map[string]any{
					"tools": []any{
						map[string]any{
							"name":        "search",
							"description": "Search for items",
							"inputSchema": map[string]any{"type": "object"},
						},
					},
				},
			},
		},
	}

	c := client.New(transport)
	tools, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
	if transport.requests[0].Method != protocol.MethodToolsList {
		t.Errorf("method = %q", transport.requests[0].Method)
	}
}

func TestClientCallTool(t *testing.T) {
	t.Run("returns result content", func(t *testing.T) {
		transport := &mockTransport{
			responses: []protocol.Response{
				{
					JSONRPC: "2.0",
					ID:      json.RawMessage(`1`),
					Result: map[string]any{
						"content": []any{
							map[string]any{"type": "text", "text": "Hello, World!"},
						},
					},
				},
			},
		}

		c := client.New(transport)
		result, err := c.CallTool(context.Background(), "greet", map[string]any{"name": "World"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text() != "Hello, World!" {
			t.Errorf("text = %q", result.Text())
		}
		if result.IsError {
			t.Error("unexpected isError")
		}
	})

	t.Run("surfaces failure payload", func(t *testing.T) {
		transport := &mockTransport{
			responses: []protocol.Response{
				{
					JSONRPC: "2.0",
					ID:      json.RawMessage(`1`),
					Result: map[string]any{
						"content": []any{
							map[string]any{"type": "text", "text": "boom"},
						},
						"isError": true,
					},
				},
			},
		}

		c := client.New(transport)
		result, err := c.CallTool(context.Background(), "explode", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError || result.Text() != "boom" {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("returns error for unknown tool", func(t *testing.T) {
		transport := &mockTransport{
			responses: []protocol.Response{
				{
					JSONRPC: "2.0",
					ID:      json.RawMessage(`1`),
					Error:   protocol.NewCapabilityNotFound("tool not found: unknown"),
				},
			},
		}

		c := client.New(transport)
		_, err := c.CallTool(context.Background(), "unknown", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		var perr *protocol.Error
		if !errors.As(err, &perr) || perr.Code != protocol.CodeCapabilityNotFound {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestClientResources(t *testing.T) {
	transport := &mockTransport{
		responses: []protocol.Response{
			{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`1`),
				Result: map[string]any{
					"resources": []any{
						map[string]any{
							"uri":      "file://{path}",
							"name":     "File",
							"mimeType": "text/plain",
						},
					},
				},
			},
			{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`2`),
				Result: map[string]any{
					"contents": []any{
						map[string]any{
							"uri":      "file://test.txt",
							"mimeType": "text/plain",
							"text":     "Hello, World!",
						},
					},
				},
			},
		},
	}

	c := client.New(transport)

	resources, err := c.ListResources(context.Background())
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 || resources[0].URI != "file://{path}" {
		t.Fatalf("unexpected resources: %+v", resources)
	}

	content, err := c.ReadResource(context.Background(), "file://test.txt")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if content.Text != "Hello, World!" {
		t.Errorf("text = %q", content.Text)
	}
}

func TestClientPrompts(t *testing.T) {
	transport := &mockTransport{
		responses: []protocol.Response{
			{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`1`),
				Result: map[string]any{
					"prompts": []any{
						map[string]any{
							"name": "greet",
							"arguments": []any{
								map[string]any{"name": "name", "required": true},
							},
						},
					},
				},
			},
			{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`2`),
				Result: map[string]any{
					"messages": []any{
						map[string]any{
							"role":    "user",
							"content": map[string]any{"type": "text", "text": "Hello, World!"},
						},
					},
				},
			},
		},
	}

	c := client.New(transport)

	prompts, err := c.ListPrompts(context.Background())
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(prompts) != 1 || !prompts[0].Arguments[0].Required {
		t.Fatalf("unexpected prompts: %+v", prompts)
	}

	result, err := c.GetPrompt(context.Background(), "greet", map[string]string{"name": "World"})
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0].Content.Text != "Hello, World!" {
		t.Fatalf("unexpected messages: %+v", result.Messages)
	}
}

func TestClientPing(t *testing.T) {
	transport := &mockTransport{
		responses: []protocol.Response{
			{JSONRPC: "2.0", ID: json.RawMessage(`1`), Result: map[string]any{}},
		},
	}

	c := client.New(transport)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientNotifications(t *testing.T) {
	transport := &mockTransport{}
	c := client.New(transport)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := c.Cancel(context.Background(), json.RawMessage(`42`)); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if len(transport.notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(transport.notifications))
	}
	if transport.notifications[0].Method != protocol.MethodShutdown {
		t.Errorf("method = %q", transport.notifications[0].Method)
	}
	if transport.notifications[1].Method != protocol.MethodCancelled {
		t.Errorf("method = %q", transport.notifications[1].Method)
	}
}

// mockTransport implements client.Transport for testing.
type mockTransport struct {
	responses     []protocol.Response
	requests      []protocol.Request
	notifications []protocol.Notification
	idx           int
}

func (m *mockTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	m.requests = append(m.requests, *req)
	if m.idx >= len(m.responses) {
		return nil, context.DeadlineExceeded
	}
	resp := m.responses[m.idx]
	m.idx++
	return &resp, nil
}

func (m *mockTransport) Notify(ctx context.Context, notif *protocol.Notification) error {
	m.notifications = append(m.notifications, *notif)
	return nil
}

func (m *mockTransport) Close() error {
	return nil
}
