package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the session lifecycle phase.
type Phase int32

const (
	// PhaseUninitialized is the phase before the initialize handshake.
	// Only initialize (and ping) requests are served.
	PhaseUninitialized Phase = iota

	// PhaseReady is the normal operating phase.
	PhaseReady

	// PhaseShuttingDown means shutdown has begun: in-flight requests
	// drain, new requests are rejected without executing.
	PhaseShuttingDown

	// PhaseClosed is terminal: all in-flight requests drained or the
	// grace period elapsed.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseShuttingDown:
		return "shutting-down"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// DefaultGracePeriod bounds how long shutdown waits for in-flight
// requests before closing anyway.
const DefaultGracePeriod = 30 * time.Second

// Lifecycle tracks the session phase and coordinates graceful drain.
// Transitions only move forward: Uninitialized -> Ready -> ShuttingDown
// -> Closed.
type Lifecycle struct {
	phase    atomic.Int32
	inFlight atomic.Int64
	grace    time.Duration

	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewLifecycle creates a lifecycle in the Uninitialized phase. A
// non-positive grace period falls back to DefaultGracePeriod.
func NewLifecycle(grace time.Duration) *Lifecycle {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Lifecycle{
		grace:  grace,
		doneCh: make(chan struct{}),
	}
}

// Phase returns the current phase.
func (lc *Lifecycle) Phase() Phase {
	return Phase(lc.phase.Load())
}

// Ready transitions Uninitialized -> Ready. It fails if the handshake
// already completed or shutdown has begun.
func (lc *Lifecycle) Ready() error {
	if !lc.phase.CompareAndSwap(int32(PhaseUninitialized), int32(PhaseReady)) {
		return fmt.Errorf("cannot transition to ready from %s", lc.Phase())
	}
	return nil
}

// BeginShutdown moves the session into ShuttingDown. Safe to call from any
// phase and more than once; later calls are no-ops.
func (lc *Lifecycle) BeginShutdown() {
	for {
		current := lc.phase.Load()
		if Phase(current) == PhaseShuttingDown || Phase(current) == PhaseClosed {
			return
		}
		if lc.phase.CompareAndSwap(current, int32(PhaseShuttingDown)) {
			return
		}
	}
}

// TrackRequest registers an in-flight request. Returns false if the
// session is shutting down and the request must be rejected.
func (lc *Lifecycle) TrackRequest() bool {
	if p := lc.Phase(); p == PhaseShuttingDown || p == PhaseClosed {
		return false
	}
	lc.inFlight.Add(1)
	return true
}

// CompleteRequest unregisters a previously tracked request.
func (lc *Lifecycle) CompleteRequest() {
	lc.inFlight.Add(-1)
}

// InFlight returns the number of requests currently tracked.
func (lc *Lifecycle) InFlight() int64 {
	return lc.inFlight.Load()
}

// Drain waits until all in-flight requests complete or the grace period
// elapses, whichever comes first, then moves to Closed. Returns the
// context or deadline error if requests were still pending.
func (lc *Lifecycle) Drain(ctx context.Context) error {
	lc.BeginShutdown()

	drainCtx, cancel := context.WithTimeout(ctx, lc.grace)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var drainErr error
loop:
	for {
		select {
		case <-drainCtx.Done():
			if lc.inFlight.Load() > 0 {
				drainErr = drainCtx.Err()
			}
			break loop
		case <-ticker.C:
			if lc.inFlight.Load() == 0 {
				break loop
			}
		}
	}

	lc.phase.Store(int32(PhaseClosed))
	lc.closeOnce.Do(func() {
		close(lc.doneCh)
	})

	return drainErr
}

// Done returns a channel closed when the session reaches Closed.
func (lc *Lifecycle) Done() <-chan struct{} {
	return lc.doneCh
}
