package middleware

import (
	"context"
	"fmt"

	"github.com/toolwire/mcpd/protocol"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger Logger
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// SizeLimit returns middleware that rejects requests whose params exceed
// maxBytes. The rejected handler never runs.
func SizeLimit(maxBytes int64, opts ...SizeLimitOption) Middleware {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if size := int64(len(req.Params)); size > maxBytes {
				if cfg.logger != nil {
					cfg.logger.Warn("request size limit exceeded",
						F("method", req.Method),
						F("size", size),
						F("max", maxBytes),
					)
				}
				return nil, protocol.NewInvalidRequest(
					fmt.Sprintf("request size %d exceeds limit of %d bytes", size, maxBytes))
			}

			return next(ctx, req)
		}
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
