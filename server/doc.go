// Package server provides the core MCP server implementation.
//
// It holds the capability registry (tools, resources, prompts), the
// session lifecycle state machine, and the execution scheduler that runs
// handlers off the transport read loop.
//
// # Registry
//
// Capabilities are registered with fluent builders during startup:
//
//	srv := server.New(server.Info{Name: "my-server", Version: "1.0.0"})
//
//	srv.Tool("add_numbers").
//	    Description("Add two integers").
//	    Handler(func(input AddInput) (string, error) { ... })
//
// Registration is only legal before the initialize handshake: once the
// session is Ready the registry is sealed and read-only, which is what
// makes it safe to share across concurrent handler goroutines without
// locking. Names are unique within a kind; listings are returned in
// registration order, stable for the whole session.
//
// # Lifecycle
//
// A session moves Uninitialized -> Ready -> ShuttingDown -> Closed.
// Capability requests are only served in Ready. After shutdown begins,
// in-flight calls drain for a bounded grace period; new requests are
// rejected without executing.
//
// # Scheduler
//
// The Scheduler runs each handler on its own goroutine under a
// concurrency bound, with a per-call timeout and cooperative
// cancellation. A timed-out call is abandoned, not preempted; tools with
// non-idempotent side effects should be marked accordingly via
// annotations.
package server
