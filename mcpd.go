// Package mcpd provides a runtime for building MCP (Model Context Protocol)
// servers with typed handlers, a phase-gated session lifecycle, and a
// bounded execution scheduler.
//
// Basic usage:
//
//	srv := mcpd.NewServer(mcpd.ServerInfo{
//	    Name:    "my-server",
//	    Version: "1.0.0",
//	})
//
//	type SearchInput struct {
//	    Query string `json:"query" jsonschema:"required"`
//	}
//
//	srv.Tool("search").
//	    Description("Search for items").
//	    Handler(func(ctx context.Context, input SearchInput) ([]string, error) {
//	        return []string{"result1", "result2"}, nil
//	    })
//
//	mcpd.ServeStdio(ctx, srv)
//
// A session starts uninitialized: capability requests are rejected until
// the client completes the initialize handshake, and registration is
// closed once it does. Shutdown drains in-flight requests before the
// process exits.
package mcpd

import (
	"context"
	"log/slog"
	"time"

	"github.com/toolwire/mcpd/middleware"
	"github.com/toolwire/mcpd/protocol"
	"github.com/toolwire/mcpd/server"
	"github.com/toolwire/mcpd/transport"
)

// Re-export core types for convenience.

// ServerInfo contains server metadata exposed to clients.
type ServerInfo = server.Info

// Capabilities declares what features the server supports.
type Capabilities = server.Capabilities

// Server is the MCP capability registry.
type Server = server.Server

// Option configures a Server.
type Option = server.Option

// WithInstructions sets usage instructions returned during the
// initialize handshake.
var WithInstructions = server.WithInstructions

// Resource types.
type ResourceContent = server.ResourceContent
type ResourceInfo = server.ResourceInfo

// Prompt types.
type PromptResult = server.PromptResult
type PromptMessage = server.PromptMessage
type PromptArgument = server.PromptArgument
type PromptInfo = server.PromptInfo
type TextContent = server.TextContent

// Tool result types.
type CallToolResult = server.CallToolResult
type ContentBlock = server.ContentBlock

// TextBlock builds a text content block.
var TextBlock = server.TextBlock

// Progress types for streaming tool responses.
type ProgressToken = server.ProgressToken
type ProgressReporter = server.ProgressReporter

// ProgressFromContext returns the progress reporter from context. Use
// this in tool handlers to report progress for long-running operations.
var ProgressFromContext = server.ProgressFromContext

// Session types.
type Session = server.Session
type LogLevel = server.LogLevel

// Log levels for session notifications, in syslog severity order.
const (
	LogLevelDebug     = server.LogLevelDebug
	LogLevelInfo      = server.LogLevelInfo
	LogLevelNotice    = server.LogLevelNotice
	LogLevelWarning   = server.LogLevelWarning
	LogLevelError     = server.LogLevelError
	LogLevelCritical  = server.LogLevelCritical
	LogLevelAlert     = server.LogLevelAlert
	LogLevelEmergency = server.LogLevelEmergency
)

// SessionFromContext returns the active session, letting handlers emit
// log notifications subject to the client's level filter.
var SessionFromContext = server.SessionFromContext

// Middleware types.
type Middleware = middleware.Middleware
type MiddlewareHandlerFunc = middleware.HandlerFunc
type Logger = middleware.Logger
type LogField = middleware.Field
type RateLimitOption = middleware.RateLimitOption

// RateLimit re-exports for convenience.
var (
	RateLimit            = middleware.RateLimit
	RateLimitByMethod    = middleware.RateLimitByMethod
	RateLimitByClient    = middleware.RateLimitByClient
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitLogger  = middleware.WithRateLimitLogger
)

// SizeLimit re-exports for convenience.
type SizeLimitOption = middleware.SizeLimitOption

var (
	SizeLimit           = middleware.SizeLimit
	WithSizeLimitLogger = middleware.WithSizeLimitLogger
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// ServeOption configures how the server is run.
type ServeOption func(*serveOptions)

type serveOptions struct {
	middleware    []Middleware
	logger        Logger
	callTimeout   time.Duration
	maxConcurrent int
	gracePeriod   time.Duration
}

func newServeOptions(opts []ServeOption) *serveOptions {
	options := &serveOptions{
		callTimeout:   DefaultCallTimeout,
		maxConcurrent: server.DefaultMaxConcurrent,
		gracePeriod:   server.DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithMiddleware adds middleware to the request handling chain.
func WithMiddleware(m ...Middleware) ServeOption {
	return func(o *serveOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithLogger sets the logger for the default middleware stack.
func WithLogger(l Logger) ServeOption {
	return func(o *serveOptions) {
		o.logger = l
	}
}

// WithCallTimeout bounds each capability call. When the deadline passes
// the client receives a timeout error; the handler keeps its context
// cancellation as the signal to stop.
func WithCallTimeout(d time.Duration) ServeOption {
	return func(o *serveOptions) {
		o.callTimeout = d
	}
}

// WithMaxConcurrent caps the number of capability calls executing at once.
func WithMaxConcurrent(n int) ServeOption {
	return func(o *serveOptions) {
		o.maxConcurrent = n
	}
}

// WithGracePeriod sets how long shutdown waits for in-flight requests.
func WithGracePeriod(d time.Duration) ServeOption {
	return func(o *serveOptions) {
		o.gracePeriod = d
	}
}

// NewServer creates a new MCP server with the given info and options.
func NewServer(info ServerInfo, opts ...Option) *Server {
	return server.New(info, opts...)
}

// ServeStdio runs the server on newline-delimited stdio. It blocks until
// the input stream ends or the context is canceled, then drains in-flight
// requests within the configured grace period.
func ServeStdio(ctx context.Context, srv *Server, opts ...ServeOption) error {
	return serveStdio(ctx, srv, transport.NewStdio(), opts...)
}

func serveStdio(ctx context.Context, srv *Server, t *transport.Stdio, opts ...ServeOption) error {
	h := NewHandler(srv, opts...)
	err := t.Serve(ctx, h)

	drainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if drainErr := h.Shutdown(drainCtx); err == nil {
		err = drainErr
	}
	return err
}

// WebSocketOption configures the WebSocket transport.
type WebSocketOption = transport.WebSocketOption

// ServeWebSocket runs the server on a WebSocket listener. This blocks
// until the context is canceled or the listener fails.
func ServeWebSocket(ctx context.Context, srv *Server, addr string, wsOpts []WebSocketOption, opts ...ServeOption) error {
	t := transport.NewWebSocket(addr, wsOpts...)
	h := NewHandler(srv, opts...)
	err := t.Serve(ctx, h)

	drainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if drainErr := h.Shutdown(drainCtx); err == nil {
		err = drainErr
	}
	return err
}

// WithWebSocketReadTimeout sets the read timeout for WebSocket messages.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return transport.WithWebSocketReadTimeout(d)
}

// WithWebSocketWriteTimeout sets the write timeout for WebSocket messages.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return transport.WithWebSocketWriteTimeout(d)
}

// Middleware re-exports.

// Chain composes multiple middleware into a single middleware.
func Chain(middlewares ...Middleware) Middleware {
	return middleware.Chain(middlewares...)
}

// Recover returns middleware that catches panics and converts them to internal errors.
func Recover() Middleware {
	return middleware.Recover()
}

// RecoverWithHandler returns middleware that catches panics and calls the provided handler.
func RecoverWithHandler(handler func(ctx context.Context, req *protocol.Request, panicVal any) (*protocol.Response, error)) Middleware {
	return middleware.RecoverWithHandler(handler)
}

// Timeout returns middleware that enforces a request deadline.
func Timeout(d time.Duration) Middleware {
	return middleware.Timeout(d)
}

// RequestID returns middleware that injects a unique request ID into the context.
func RequestID() Middleware {
	return middleware.RequestID()
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	return middleware.RequestIDFromContext(ctx)
}

// Logging returns middleware that logs request details.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// DefaultMiddleware returns the recommended production middleware stack.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// DefaultMiddlewareWithTimeout returns the default stack with a timeout middleware.
func DefaultMiddlewareWithTimeout(logger Logger, timeout time.Duration) []Middleware {
	return middleware.DefaultStackWithTimeout(logger, timeout)
}

// LogF creates a new log field with the given key and value.
func LogF(key string, value any) LogField {
	return middleware.F(key, value)
}

// NewSlogLogger wraps a slog.Logger for use with the middleware stack.
func NewSlogLogger(l *slog.Logger) Logger {
	return middleware.NewSlogLogger(l)
}
