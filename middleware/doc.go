// Package middleware provides request/response middleware for MCP servers.
//
// Middleware wraps the next handler in the chain, allowing pre- and
// post-processing of requests before the dispatcher sees them:
//
//	chain := middleware.Chain(
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
//	handler := chain(baseHandler)
//
// Built-in middleware:
//
//   - Recover: catches panics and converts them to internal errors
//   - RequestID: injects unique request IDs into the context
//   - Timeout: enforces request deadlines
//   - Logging: logs request outcomes and timing
//   - RateLimit: token bucket rate limiting with pluggable keys
//   - SizeLimit: rejects oversized request params
//   - OTel: OpenTelemetry spans and metrics per request
//
// Pre-configured stacks cover the common cases:
//
//	stack := middleware.DefaultStack(logger)
//	stack := middleware.DefaultStackWithTimeout(logger, 30*time.Second)
package middleware
