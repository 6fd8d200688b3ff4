package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolwire/mcpd/protocol"
)

// Timeout returns middleware that enforces a request deadline. When the
// deadline expires the handler's context is canceled and a timeout error is
// returned in its place; the handler itself is not preempted.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			resp, err := next(ctx, req)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, protocol.NewTimeout(fmt.Sprintf("%s did not complete within %s", req.Method, d))
			}
			return resp, err
		}
	}
}
