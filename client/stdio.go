package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/toolwire/mcpd/protocol"
)

// StdioTransport talks to an MCP server over newline-delimited JSON
// streams, either a spawned subprocess or a caller-supplied pipe pair.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	mu       sync.Mutex
	pending  map[string]chan *protocol.Response
	closed   bool
	readDone chan struct{}
}

// NewStdioTransport spawns the command and connects to its stdio.
func NewStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	t := newStdioTransport(stdin, stdout)
	t.cmd = cmd
	t.stderr = stderr
	return t, nil
}

// NewPipeTransport connects to a server over an existing stream pair,
// typically in-process pipes. Closing the transport closes w.
func NewPipeTransport(r io.Reader, w io.WriteCloser) *StdioTransport {
	return newStdioTransport(w, r)
}

func newStdioTransport(in io.WriteCloser, out io.Reader) *StdioTransport {
	t := &StdioTransport{
		stdin:    in,
		stdout:   out,
		pending:  make(map[string]chan *protocol.Response),
		readDone: make(chan struct{}),
	}
	go t.readResponses()
	return t
}

// Send writes the request and waits for the response with a matching id.
func (t *StdioTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if len(req.ID) == 0 {
		return nil, fmt.Errorf("request has no id")
	}
	id := string(req.ID)

	respCh := make(chan *protocol.Response, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.pending[id] = respCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.writeFrame(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.readDone:
		return nil, fmt.Errorf("connection closed")
	case resp := <-respCh:
		return resp, nil
	}
}

// Notify writes a notification; nothing comes back.
func (t *StdioTransport) Notify(ctx context.Context, notif *protocol.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.writeFrame(notif)
}

func (t *StdioTransport) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport closed")
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the connection and, for a spawned server, waits for the
// process to exit.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Closing stdin signals EOF to the server, which drains and exits.
	_ = t.stdin.Close()

	<-t.readDone

	if t.cmd == nil {
		return nil
	}
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}

// Stderr returns the server's stderr stream, or nil for pipe transports.
func (t *StdioTransport) Stderr() io.Reader {
	return t.stderr
}

func (t *StdioTransport) readResponses() {
	defer close(t.readDone)

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		var resp protocol.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if len(resp.ID) == 0 {
			// Server-initiated notification; no caller is waiting.
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[string(resp.ID)]
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}
