package server

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/toolwire/mcpd/protocol"
)

// NotificationSender can send JSON-RPC notifications to the client.
type NotificationSender interface {
	SendNotification(method string, params any) error
}

// Session is the process-scoped state of one protocol session: its
// identity, its lifecycle, its scheduler, and the client-facing logging
// level. Sessions share the sealed capability registry; no state outlives
// the process.
type Session struct {
	id        string
	lifecycle *Lifecycle
	scheduler *Scheduler

	mu       sync.RWMutex
	notifier NotificationSender
	logLevel LogLevel
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNotifier sets the sender used for client-facing notifications.
func WithNotifier(n NotificationSender) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// NewSession creates a session with a fresh id, its own lifecycle, and a
// scheduler bounded at maxConcurrent.
func NewSession(lifecycle *Lifecycle, scheduler *Scheduler, opts ...SessionOption) *Session {
	s := &Session{
		id:        uuid.NewString(),
		lifecycle: lifecycle,
		scheduler: scheduler,
		logLevel:  LogLevelInfo,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Lifecycle returns the session lifecycle.
func (s *Session) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Scheduler returns the session's execution scheduler.
func (s *Session) Scheduler() *Scheduler {
	return s.scheduler
}

// SetNotifier sets the notification sender, typically when the transport
// connects.
func (s *Session) SetNotifier(n NotificationSender) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Log sends a log notification to the client if the level clears the
// session's minimum.
func (s *Session) Log(level LogLevel, logger string, data any) {
	s.mu.RLock()
	minLevel := s.logLevel
	notifier := s.notifier
	s.mu.RUnlock()

	if notifier == nil || !ShouldLog(level, minLevel) {
		return
	}

	msg := LoggingMessage{
		Level:  level,
		Logger: logger,
		Data:   data,
	}

	_ = notifier.SendNotification(protocol.MethodLoggingMessage, msg)
}

// SetLogLevel sets the minimum client-facing log level.
func (s *Session) SetLogLevel(level LogLevel) {
	s.mu.Lock()
	s.logLevel = level
	s.mu.Unlock()
}

// LogLevel returns the current minimum client-facing log level.
func (s *Session) LogLevel() LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logLevel
}

// sessionKey is the context key for the session.
type sessionKey struct{}

// ContextWithSession returns a context with the session attached.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session from context, or nil if none.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}
