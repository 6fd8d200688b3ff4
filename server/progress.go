package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/toolwire/mcpd/protocol"
)

// ProgressToken is a unique identifier for tracking progress of a request.
type ProgressToken string

// ProgressReporter allows tool handlers to report progress updates for
// long-running operations.
type ProgressReporter interface {
	// Report sends a progress update. Progress must increase with each call.
	Report(progress float64, total *float64) error
	// Token returns the progress token, or empty string if none.
	Token() ProgressToken
}

// progressReporter sends notifications/progress to the client.
type progressReporter struct {
	token    ProgressToken
	notifier NotificationSender

	mu   sync.Mutex
	last float64
	sent bool
}

// NewProgressReporter creates a reporter bound to a progress token.
func NewProgressReporter(token ProgressToken, notifier NotificationSender) ProgressReporter {
	return &progressReporter{
		token:    token,
		notifier: notifier,
	}
}

func (p *progressReporter) Token() ProgressToken {
	return p.token
}

func (p *progressReporter) Report(progress float64, total *float64) error {
	if p.token == "" || p.notifier == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sent && progress <= p.last {
		return fmt.Errorf("progress must increase: %v <= %v", progress, p.last)
	}
	p.last = progress
	p.sent = true

	params := map[string]any{
		"progressToken": string(p.token),
		"progress":      progress,
	}
	if total != nil {
		params["total"] = *total
	}

	return p.notifier.SendNotification(protocol.MethodProgress, params)
}

// progressContextKey is the context key for the progress reporter.
type progressContextKey struct{}

// ContextWithProgress returns a context with the progress reporter attached.
func ContextWithProgress(ctx context.Context, reporter ProgressReporter) context.Context {
	return context.WithValue(ctx, progressContextKey{}, reporter)
}

// ProgressFromContext returns the progress reporter from context, or a
// no-op reporter if none.
func ProgressFromContext(ctx context.Context) ProgressReporter {
	if reporter, ok := ctx.Value(progressContextKey{}).(ProgressReporter); ok {
		return reporter
	}
	return noopProgressReporter{}
}

type noopProgressReporter struct{}

func (noopProgressReporter) Report(float64, *float64) error { return nil }
func (noopProgressReporter) Token() ProgressToken           { return "" }

// ExtractProgressToken extracts the progress token from request params.
func ExtractProgressToken(params json.RawMessage) ProgressToken {
	if params == nil {
		return ""
	}

	var meta struct {
		Meta struct {
			ProgressToken string `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(params, &meta); err != nil {
		return ""
	}
	return ProgressToken(meta.Meta.ProgressToken)
}
