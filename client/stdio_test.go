package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/client"
	"github.com/toolwire/mcpd/transport"
)

type reverseInput struct {
	Text string `json:"text" jsonschema:"required"`
}

// startPipeServer runs a server over in-process pipes and returns a
// connected, uninitialized client transport.
func startPipeServer(t *testing.T) *client.StdioTransport {
	t.Helper()

	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "pipe-server", Version: "0.1.0"})
	srv.Tool("reverse").
		Description("Reverses the input text").
		Handler(func(ctx context.Context, input reverseInput) (string, error) {
			runes := []rune(input.Text)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		})

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	tr := transport.NewStdio(transport.WithStdin(serverIn), transport.WithStdout(serverOut))
	handler := mcpd.NewHandler(srv)

	done := make(chan error, 1)
	go func() {
		done <- tr.Serve(context.Background(), handler)
	}()

	t.Cleanup(func() {
		_ = clientOut.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after client close")
		}
		_ = handler.Shutdown(context.Background())
	})

	return client.NewPipeTransport(clientIn, clientOut)
}

func TestStdioTransportEndToEnd(t *testing.T) {
	c := client.New(startPipeServer(t), client.WithTimeout(5*time.Second))

	info, err := c.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if info.Name != "pipe-server" {
		t.Errorf("server name = %q", info.Name)
	}
	if !info.Capabilities.Tools {
		t.Error("expected tools capability")
	}

	t.Run("list and call tool", func(t *testing.T) {
		tools, err := c.ListTools(context.Background())
		if err != nil {
			t.Fatalf("ListTools failed: %v", err)
		}
		if len(tools) != 1 || tools[0].Name != "reverse" {
			t.Fatalf("unexpected tools: %+v", tools)
		}

		result, err := c.CallTool(context.Background(), "reverse", map[string]any{"text": "abc"})
		if err != nil {
			t.Fatalf("CallTool failed: %v", err)
		}
		if result.Text() != "cba" {
			t.Errorf("result = %q, want %q", result.Text(), "cba")
		}
	})

	t.Run("invalid arguments rejected", func(t *testing.T) {
		if _, err := c.CallTool(context.Background(), "reverse", map[string]any{}); err == nil {
			t.Fatal("expected error for missing argument")
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := c.Ping(context.Background()); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	t.Run("shutdown stops new work", func(t *testing.T) {
		if err := c.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown failed: %v", err)
		}
		// The rejection arrives as a protocol error once the server
		// processes the notification.
		deadline := time.Now().Add(2 * time.Second)
		for {
			if err := c.Ping(context.Background()); err != nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("server kept accepting requests after shutdown")
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestStdioTransportRequiresInitialize(t *testing.T) {
	c := client.New(startPipeServer(t), client.WithTimeout(5*time.Second))

	_, err := c.ListTools(context.Background())
	if err == nil {
		t.Fatal("expected error before initialize")
	}
}
