// Package transport provides MCP transport implementations.
package transport

import (
	"context"

	"github.com/toolwire/mcpd/protocol"
)

// Handler processes incoming MCP requests. Returning a nil response and
// nil error means no response is sent (notifications, cancelled calls).
type Handler interface {
	HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// HandleRequest calls f(ctx, req).
func (f HandlerFunc) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Transport defines the communication layer interface. A transport owns
// framing and nothing else; protocol knowledge lives in the codec and the
// handler behind it.
type Transport interface {
	// Serve starts the transport, blocking until the stream ends, the
	// context is canceled, or a fatal transport error occurs. Transport
	// errors are not retried; the surrounding process is expected to
	// restart the session.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// NotificationSender can send JSON-RPC notifications to clients.
type NotificationSender interface {
	SendNotification(method string, params any) error
}

// notificationSenderKey is the context key for the notification sender.
type notificationSenderKey struct{}

// ContextWithNotificationSender returns a context with the notification sender attached.
func ContextWithNotificationSender(ctx context.Context, sender NotificationSender) context.Context {
	return context.WithValue(ctx, notificationSenderKey{}, sender)
}

// NotificationSenderFromContext returns the notification sender from the context, or nil if none.
func NotificationSenderFromContext(ctx context.Context) NotificationSender {
	sender, _ := ctx.Value(notificationSenderKey{}).(NotificationSender)
	return sender
}
