package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/toolwire/mcpd/protocol"
)

// Stdio implements newline-delimited JSON-RPC over standard input and
// output. Each line carries exactly one message. Reading and handling are
// decoupled: every frame is dispatched on its own goroutine so a slow
// handler never stalls the read loop, and writes are serialized so
// concurrent responses cannot interleave.
type Stdio struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets the input reader (default os.Stdin).
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) { s.in = r }
}

// WithStdout sets the output writer (default os.Stdout).
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) { s.out = w }
}

// NewStdio creates a stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:  os.Stdin,
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the transport address description.
func (s *Stdio) Addr() string { return "stdio" }

// Serve reads frames until EOF or context cancellation. It returns nil on
// clean EOF; callers decide how to drain in-flight work after the stream
// ends. A partial final line without a trailing newline is an incomplete
// frame and is discarded.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	reader := bufio.NewReader(s.in)

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if isBlank(line) {
				continue
			}
			go s.handleFrame(ctx, handler, line)
		}
	}
}

func (s *Stdio) handleFrame(ctx context.Context, handler Handler, frame []byte) {
	req, errResp := protocol.Decode(frame)
	if errResp != nil {
		// A malformed frame whose id could not be recovered gets no
		// reply; there is nothing to correlate it with.
		if len(errResp.ID) > 0 {
			s.writeResponse(errResp)
		}
		return
	}

	ctx = ContextWithNotificationSender(ctx, s)

	resp, err := handler.HandleRequest(ctx, req)
	if req.IsNotification() {
		return
	}
	if err != nil {
		resp = protocol.NewErrorResponse(req.ID, toProtocolError(err))
	}
	if resp != nil {
		s.writeResponse(resp)
	}
}

func (s *Stdio) writeResponse(resp *protocol.Response) {
	data, err := protocol.Encode(resp)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(data)
	s.out.Write([]byte("\n"))
}

// SendNotification sends a JSON-RPC notification to the client.
func (s *Stdio) SendNotification(method string, params any) error {
	notif, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}

	data, err := notif.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	_, err = s.out.Write([]byte("\n"))
	return err
}

func isBlank(line []byte) bool {
	for _, c := range line {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// toProtocolError maps a handler error onto a protocol error, wrapping
// anything unrecognized as an internal error.
func toProtocolError(err error) *protocol.Error {
	if perr, ok := err.(*protocol.Error); ok {
		return perr
	}
	return protocol.NewInternalError(err.Error())
}
