// Package e2e exercises the full serving stack over a real stdio stream:
// raw frames in, raw frames out, with the production dispatcher in between.
package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/toolwire/mcpd"
	"github.com/toolwire/mcpd/protocol"
	"github.com/toolwire/mcpd/transport"
)

// wireSession runs a server over in-process pipes and exposes the raw
// frame stream. Responses are matched by id; server-initiated
// notifications are collected separately.
type wireSession struct {
	t testing.TB

	writeMu sync.Mutex
	writer  io.WriteCloser

	mu     sync.Mutex
	resps  map[string]*protocol.Response
	notifs []json.RawMessage

	handler *mcpd.Handler
	done    chan error
}

func startSession(t testing.TB, srv *mcpd.Server, opts ...mcpd.ServeOption) *wireSession {
	t.Helper()

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	tr := transport.NewStdio(transport.WithStdin(serverIn), transport.WithStdout(serverOut))
	handler := mcpd.NewHandler(srv, opts...)

	ws := &wireSession{
		t:       t,
		writer:  clientOut,
		resps:   make(map[string]*protocol.Response),
		handler: handler,
		done:    make(chan error, 1),
	}

	go func() {
		ws.done <- tr.Serve(context.Background(), handler)
	}()
	go ws.readLoop(clientIn)

	t.Cleanup(func() {
		_ = clientOut.Close()
		select {
		case <-ws.done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after stream close")
		}
		_ = handler.Shutdown(context.Background())
	})

	return ws
}

func (ws *wireSession) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)

		var probe struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}

		ws.mu.Lock()
		if probe.Method != "" && len(probe.ID) == 0 {
			ws.notifs = append(ws.notifs, line)
		} else {
			var resp protocol.Response
			if err := json.Unmarshal(line, &resp); err == nil {
				ws.resps[string(resp.ID)] = &resp
			}
		}
		ws.mu.Unlock()
	}
}

// sendRaw writes one frame verbatim.
func (ws *wireSession) sendRaw(frame string) {
	ws.t.Helper()

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if _, err := io.WriteString(ws.writer, frame+"\n"); err != nil {
		ws.t.Fatalf("write frame: %v", err)
	}
}

func (ws *wireSession) send(id, method, params string) {
	ws.t.Helper()

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"method":%q`, id, method)
	if params != "" {
		frame += `,"params":` + params
	}
	ws.sendRaw(frame + `}`)
}

func (ws *wireSession) notify(method, params string) {
	ws.t.Helper()

	frame := fmt.Sprintf(`{"jsonrpc":"2.0","method":%q`, method)
	if params != "" {
		frame += `,"params":` + params
	}
	ws.sendRaw(frame + `}`)
}

// wait blocks until a response with the given id arrives.
func (ws *wireSession) wait(id string) *protocol.Response {
	ws.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ws.mu.Lock()
		resp, ok := ws.resps[id]
		ws.mu.Unlock()
		if ok {
			return resp
		}
		time.Sleep(2 * time.Millisecond)
	}
	ws.t.Fatalf("no response for id %s", id)
	return nil
}

// noResponse asserts that no response for the id arrives within the window.
func (ws *wireSession) noResponse(id string, window time.Duration) {
	ws.t.Helper()

	time.Sleep(window)
	ws.mu.Lock()
	_, ok := ws.resps[id]
	ws.mu.Unlock()
	if ok {
		ws.t.Fatalf("unexpected response for id %s", id)
	}
}

func (ws *wireSession) notifications() []json.RawMessage {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]json.RawMessage(nil), ws.notifs...)
}

func (ws *wireSession) initialize() {
	ws.t.Helper()

	ws.send("1", "initialize", `{"protocolVersion":"2024-11-05","clientInfo":{"name":"e2e","version":"1.0.0"}}`)
	resp := ws.wait("1")
	if resp.Error != nil {
		ws.t.Fatalf("initialize failed: %v", resp.Error)
	}
}

func resultMap(t testing.TB, resp *protocol.Response) map[string]any {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	return result
}

type addInput struct {
	A int `json:"a" jsonschema:"required"`
	B int `json:"b" jsonschema:"required"`
}

func complianceServer(t testing.TB) *mcpd.Server {
	t.Helper()

	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "compliance-test", Version: "1.0.0"})

	srv.Tool("add").
		Description("Add two numbers").
		Handler(func(input addInput) (string, error) {
			return fmt.Sprintf("%d", input.A+input.B), nil
		})

	srv.Tool("block").
		Description("Blocks until cancelled").
		Handler(func(ctx context.Context, input struct{}) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	srv.Resource("file://{path}").
		Name("File").
		MimeType("text/plain").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcpd.ResourceContent, error) {
			return &mcpd.ResourceContent{
				URI:      uri,
				MimeType: "text/plain",
				Text:     "Content of " + params["path"],
			}, nil
		})

	srv.Prompt("greet").
		Description("Generate a greeting").
		Argument("name", "Name to greet", true).
		Template("user", "Hello, {name}!")

	return srv
}

func TestComplianceInitialize(t *testing.T) {
	ws := startSession(t, complianceServer(t))

	ws.send("1", "initialize", `{"protocolVersion":"2024-11-05","clientInfo":{"name":"e2e","version":"1.0.0"}}`)
	result := resultMap(t, ws.wait("1"))

	if result["protocolVersion"] != protocol.MCPVersion {
		t.Errorf("protocolVersion = %v, want %v", result["protocolVersion"], protocol.MCPVersion)
	}

	serverInfo, _ := result["serverInfo"].(map[string]any)
	if serverInfo["name"] != "compliance-test" || serverInfo["version"] != "1.0.0" {
		t.Errorf("unexpected serverInfo: %v", serverInfo)
	}

	capabilities, _ := result["capabilities"].(map[string]any)
	for _, name := range []string{"tools", "resources", "prompts", "logging"} {
		if _, ok := capabilities[name]; !ok {
			t.Errorf("missing %s capability", name)
		}
	}

	// The handshake reply carries the full registry listings.
	tools, _ := result["tools"].([]any)
	if len(tools) != 2 {
		t.Errorf("expected 2 tools in handshake, got %d", len(tools))
	}
	resources, _ := result["resources"].([]any)
	if len(resources) != 1 {
		t.Errorf("expected 1 resource in handshake, got %d", len(resources))
	}
	prompts, _ := result["prompts"].([]any)
	if len(prompts) != 1 {
		t.Errorf("expected 1 prompt in handshake, got %d", len(prompts))
	}
}

func TestComplianceLifecycle(t *testing.T) {
	t.Run("requests rejected before initialize", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))

		ws.send("1", "tools/list", "")
		resp := ws.wait("1")
		if resp.Error == nil || resp.Error.Code != protocol.CodeNotReady {
			t.Fatalf("expected not-ready error, got %v", resp.Error)
		}
	})

	t.Run("ping allowed before initialize", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))

		ws.send("1", "ping", "")
		if resp := ws.wait("1"); resp.Error != nil {
			t.Fatalf("ping failed: %v", resp.Error)
		}
	})

	t.Run("second initialize rejected", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))
		ws.initialize()

		ws.send("2", "initialize", `{"protocolVersion":"2024-11-05"}`)
		resp := ws.wait("2")
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
			t.Fatalf("expected invalid-request error, got %v", resp.Error)
		}
	})

	t.Run("shutdown rejects subsequent requests", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))
		ws.initialize()

		ws.notify("notifications/shutdown", "")

		// The notification is processed asynchronously; poll until the
		// rejection takes effect.
		deadline := time.Now().Add(2 * time.Second)
		for i := 2; ; i++ {
			id := fmt.Sprintf("%d", i)
			ws.send(id, "tools/list", "")
			resp := ws.wait(id)
			if resp.Error != nil && resp.Error.Code == protocol.CodeShuttingDown {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("server kept accepting requests after shutdown")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("initialized notification gets no reply", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))
		ws.initialize()

		ws.notify("notifications/initialized", "")
		time.Sleep(50 * time.Millisecond)

		ws.mu.Lock()
		n := len(ws.resps)
		ws.mu.Unlock()
		if n != 1 {
			t.Errorf("expected only the initialize response, got %d frames", n)
		}
	})
}

func TestComplianceTools(t *testing.T) {
	ws := startSession(t, complianceServer(t))
	ws.initialize()

	t.Run("tools/list", func(t *testing.T) {
		ws.send("10", "tools/list", "")
		result := resultMap(t, ws.wait("10"))

		tools, _ := result["tools"].([]any)
		if len(tools) != 2 {
			t.Fatalf("expected 2 tools, got %d", len(tools))
		}
		tool := tools[0].(map[string]any)
		if tool["name"] != "add" {
			t.Errorf("tool name = %v", tool["name"])
		}
		if tool["inputSchema"] == nil {
			t.Error("missing inputSchema")
		}
	})

	t.Run("tools/call", func(t *testing.T) {
		ws.send("11", "tools/call", `{"name":"add","arguments":{"a":2,"b":3}}`)
		result := resultMap(t, ws.wait("11"))

		content, _ := result["content"].([]any)
		if len(content) != 1 {
			t.Fatalf("expected 1 content block, got %d", len(content))
		}
		block := content[0].(map[string]any)
		if block["type"] != "text" || block["text"] != "5" {
			t.Errorf("unexpected content block: %v", block)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		ws.send("12", "tools/call", `{"name":"unknown","arguments":{}}`)
		resp := ws.wait("12")
		if resp.Error == nil || resp.Error.Code != protocol.CodeCapabilityNotFound {
			t.Fatalf("expected capability-not-found, got %v", resp.Error)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		ws.send("13", "tools/call", `{"name":"add","arguments":{"a":"two"}}`)
		resp := ws.wait("13")
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
			t.Fatalf("expected invalid-params, got %v", resp.Error)
		}
	})
}

func TestComplianceResources(t *testing.T) {
	ws := startSession(t, complianceServer(t))
	ws.initialize()

	t.Run("resources/read", func(t *testing.T) {
		ws.send("20", "resources/read", `{"uri":"file://test.txt"}`)
		result := resultMap(t, ws.wait("20"))

		contents, _ := result["contents"].([]any)
		if len(contents) != 1 {
			t.Fatalf("expected 1 content item, got %d", len(contents))
		}
		content := contents[0].(map[string]any)
		if content["text"] != "Content of test.txt" {
			t.Errorf("content.text = %v", content["text"])
		}
	})

	t.Run("unknown resource", func(t *testing.T) {
		ws.send("21", "resources/read", `{"uri":"unknown://x"}`)
		resp := ws.wait("21")
		if resp.Error == nil || resp.Error.Code != protocol.CodeCapabilityNotFound {
			t.Fatalf("expected capability-not-found, got %v", resp.Error)
		}
	})
}

func TestCompliancePrompts(t *testing.T) {
	ws := startSession(t, complianceServer(t))
	ws.initialize()

	t.Run("prompts/get", func(t *testing.T) {
		ws.send("30", "prompts/get", `{"name":"greet","arguments":{"name":"World"}}`)
		result := resultMap(t, ws.wait("30"))

		messages, _ := result["messages"].([]any)
		if len(messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(messages))
		}
		message := messages[0].(map[string]any)
		content := message["content"].(map[string]any)
		if content["text"] != "Hello, World!" {
			t.Errorf("content.text = %v", content["text"])
		}
	})

	t.Run("missing required argument", func(t *testing.T) {
		ws.send("31", "prompts/get", `{"name":"greet","arguments":{}}`)
		resp := ws.wait("31")
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidParams {
			t.Fatalf("expected invalid-params, got %v", resp.Error)
		}
	})
}

func TestComplianceFraming(t *testing.T) {
	t.Run("response echoes string id", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))

		ws.send(`"req-abc"`, "ping", "")
		resp := ws.wait(`"req-abc"`)
		if resp.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q", resp.JSONRPC)
		}
	})

	t.Run("malformed frame with id gets error response", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))

		ws.sendRaw(`{"jsonrpc":"2.0","id":7,"method":42}`)
		resp := ws.wait("7")
		if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
			t.Fatalf("expected invalid-request, got %v", resp.Error)
		}
	})

	t.Run("unparseable frame gets no reply", func(t *testing.T) {
		ws := startSession(t, complianceServer(t))

		ws.sendRaw(`{not json at all`)
		ws.send("8", "ping", "")
		if resp := ws.wait("8"); resp.Error != nil {
			t.Fatalf("ping after garbage failed: %v", resp.Error)
		}

		ws.mu.Lock()
		n := len(ws.resps)
		ws.mu.Unlock()
		if n != 1 {
			t.Errorf("expected exactly 1 response, got %d", n)
		}
	})
}

func TestComplianceCancellation(t *testing.T) {
	ws := startSession(t, complianceServer(t))
	ws.initialize()

	ws.send("40", "tools/call", `{"name":"block","arguments":{}}`)

	// Give the call time to enter the handler, then cancel it.
	time.Sleep(50 * time.Millisecond)
	ws.notify("notifications/cancelled", `{"requestId":40}`)

	// A cancelled call produces no response at all.
	ws.noResponse("40", 200*time.Millisecond)

	// The session keeps working.
	ws.send("41", "ping", "")
	if resp := ws.wait("41"); resp.Error != nil {
		t.Fatalf("ping after cancel failed: %v", resp.Error)
	}
}

func TestComplianceProgress(t *testing.T) {
	srv := mcpd.NewServer(mcpd.ServerInfo{Name: "progress-test", Version: "1.0.0"})
	srv.Tool("work").
		Handler(func(ctx context.Context, input struct{}) (string, error) {
			reporter := mcpd.ProgressFromContext(ctx)
			total := 2.0
			_ = reporter.Report(1, &total)
			_ = reporter.Report(2, &total)
			return "done", nil
		})

	ws := startSession(t, srv)
	ws.initialize()

	ws.send("50", "tools/call", `{"name":"work","arguments":{},"_meta":{"progressToken":"tok-1"}}`)
	if resp := ws.wait("50"); resp.Error != nil {
		t.Fatalf("tools/call failed: %v", resp.Error)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var seen int
		for _, raw := range ws.notifications() {
			var notif struct {
				Method string `json:"method"`
				Params struct {
					ProgressToken string  `json:"progressToken"`
					Progress      float64 `json:"progress"`
				} `json:"params"`
			}
			if json.Unmarshal(raw, &notif) == nil &&
				notif.Method == protocol.MethodProgress &&
				notif.Params.ProgressToken == "tok-1" {
				seen++
			}
		}
		if seen >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 progress notifications, saw %d", seen)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
