// Package middleware provides middleware utilities for MCP request handling.
package middleware

import (
	"context"

	"github.com/toolwire/mcpd/protocol"
)

// HandlerFunc is the signature for request handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order, so Chain(m1, m2, m3) results in
// m1 wrapping m2 wrapping m3 wrapping the final handler.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Stack provides a fluent API for building middleware chains.
type Stack struct {
	middlewares []Middleware
}

// Use creates a new middleware stack starting with the given middleware.
func Use(middlewares ...Middleware) *Stack {
	return &Stack{
		middlewares: middlewares,
	}
}

// Append adds middleware to the stack and returns the updated stack.
func (s *Stack) Append(middlewares ...Middleware) *Stack {
	s.middlewares = append(s.middlewares, middlewares...)
	return s
}

// Then applies the middleware stack to a handler and returns the wrapped handler.
func (s *Stack) Then(handler HandlerFunc) HandlerFunc {
	return Chain(s.middlewares...)(handler)
}
