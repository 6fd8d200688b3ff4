package mcpd_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/middleware"
	"github.com/toolwire/mcpd/protocol"
)

// BenchmarkToolExecution measures schema validation plus handler dispatch.
func BenchmarkToolExecution(b *testing.B) {
	type AddInput struct {
		A int `json:"a"`
		B int `json:"b"`
	}

	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "benchmark", Version: "1.0.0"})
	srv.Tool("add").
		Handler(func(input AddInput) (int, error) {
			return input.A + input.B, nil
		})

	tool, _ := srv.GetTool("add")
	input := json.RawMessage(`{"a":2,"b":3}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tool.Execute(context.Background(), input); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDispatch measures a full tools/call through the session
// dispatcher, including lifecycle gating and the scheduler.
func BenchmarkDispatch(b *testing.B) {
	type AddInput struct {
		A int `json:"a"`
		B int `json:"b"`
	}

	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "benchmark", Version: "1.0.0"})
	srv.Tool("add").
		Handler(func(input AddInput) (int, error) {
			return input.A + input.B, nil
		})

	h := mcpd.NewHandler(srv)
	init := &protocol.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  protocol.MethodInitialize,
	}
	if _, err := h.HandleRequest(context.Background(), init); err != nil {
		b.Fatal(err)
	}

	params := json.RawMessage(`{"name":"add","arguments":{"a":2,"b":3}}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := &protocol.Request{
			JSONRPC: "2.0",
			ID:      json.RawMessage(`2`),
			Method:  protocol.MethodToolsCall,
			Params:  params,
		}
		if _, err := h.HandleRequest(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkMiddlewareChain measures middleware overhead per request.
func BenchmarkMiddlewareChain(b *testing.B) {
	base := func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(req.ID, map[string]any{"status": "ok"}), nil
	}
	req := &protocol.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "test",
	}

	b.Run("no_middleware", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := base(context.Background(), req); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("request_id_only", func(b *testing.B) {
		handler := middleware.Chain(middleware.RequestID())(base)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := handler(context.Background(), req); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("default_stack", func(b *testing.B) {
		stack := middleware.DefaultStack(middleware.NopLogger{})
		handler := middleware.Chain(stack...)(base)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := handler(context.Background(), req); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkCodec measures frame decode and encode.
func BenchmarkCodec(b *testing.B) {
	b.Run("decode", func(b *testing.B) {
		frame := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`)
		for i := 0; i < b.N; i++ {
			req, errResp := protocol.Decode(frame)
			if errResp != nil || req == nil {
				b.Fatal("decode failed")
			}
		}
	})

	b.Run("encode", func(b *testing.B) {
		resp := protocol.NewResponse(json.RawMessage(`1`), map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Hello, World!"},
			},
		})
		for i := 0; i < b.N; i++ {
			if _, err := protocol.Encode(resp); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkResourceRead measures URI matching plus handler dispatch.
func BenchmarkResourceRead(b *testing.B) {
	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "benchmark", Version: "1.0.0"})
	srv.Resource("file://{path}").
		Name("File").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcpd.ResourceContent, error) {
			return &mcpd.ResourceContent{
				URI:      uri,
				MimeType: "text/plain",
				Text:     "Hello, World!",
			}, nil
		})

	resource, _ := srv.FindResourceForURI("file://test.txt")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := resource.Read(context.Background(), "file://test.txt"); err != nil {
			b.Fatal(err)
		}
	}
}
