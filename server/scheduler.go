package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/toolwire/mcpd/protocol"
)

// ErrCallCancelled is returned by Submit when the call was cancelled via a
// cancellation notification. No response is sent for a cancelled call; the
// caller already stopped waiting for one.
var ErrCallCancelled = errors.New("call cancelled")

// DefaultMaxConcurrent bounds handler concurrency when no limit is
// configured.
const DefaultMaxConcurrent = 16

// CallFunc is a unit of work submitted to the scheduler. The context is
// cancelled on timeout or cancellation; handlers are expected to observe
// it at I/O boundaries.
type CallFunc func(ctx context.Context) (any, error)

// Scheduler runs capability handlers without stalling the transport read
// loop. It enforces a concurrency bound, per-call timeouts, duplicate
// request-id detection, and cooperative cancellation.
//
// A call that exceeds its timeout is abandoned, not preempted: the
// scheduler stops waiting and releases the caller, but a handler blocked
// in I/O may still complete its side effects. Tools with non-idempotent
// side effects must account for this.
type Scheduler struct {
	slots chan struct{}

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewScheduler creates a scheduler allowing up to maxConcurrent handlers
// to run at once. A non-positive limit falls back to DefaultMaxConcurrent.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		slots:    make(chan struct{}, maxConcurrent),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Submit runs fn and waits for its result, a timeout, or cancellation.
// The id is the request's correlation token; a duplicate id among
// in-flight calls is rejected before fn runs. A zero timeout means no
// deadline.
//
// At most one outcome is ever returned per id: once Submit returns, a
// late result from the abandoned goroutine is discarded.
func (s *Scheduler) Submit(ctx context.Context, id string, timeout time.Duration, fn CallFunc) (any, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if id != "" {
		s.mu.Lock()
		if _, dup := s.inflight[id]; dup {
			s.mu.Unlock()
			return nil, protocol.NewInvalidRequest(fmt.Sprintf("request id %s is already in flight", id))
		}
		s.inflight[id] = cancel
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			delete(s.inflight, id)
			s.mu.Unlock()
		}()
	}

	// Acquire an execution slot. The slot is held until the handler
	// returns, even if the caller stops waiting, so abandoned handlers
	// still count against the concurrency bound.
	select {
	case s.slots <- struct{}{}:
	case <-callCtx.Done():
		return nil, s.doneError(ctx)
	}

	results := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- callOutcome{err: protocol.NewInternalError(fmt.Sprintf("handler panic: %v", r))}
			}
			<-s.slots
		}()
		result, err := fn(callCtx)
		results <- callOutcome{result: result, err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case out := <-results:
		// A completion that races with cancellation still counts as
		// cancelled: the caller already stopped waiting for a response.
		if callCtx.Err() != nil {
			return nil, s.doneError(ctx)
		}
		return out.result, out.err
	case <-timeoutCh:
		cancel()
		return nil, protocol.NewTimeout(fmt.Sprintf("call exceeded %s; the handler may still be running", timeout))
	case <-callCtx.Done():
		return nil, s.doneError(ctx)
	}
}

// Cancel cancels an in-flight call by request id. The cancellation is
// cooperative: the call's context is cancelled and the handler is expected
// to observe it, but forced termination is not guaranteed.
// Returns true if the id was in flight.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.inflight[id]; ok {
		cancel()
		delete(s.inflight, id)
		return true
	}
	return false
}

// Active returns the number of in-flight calls.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// doneError distinguishes a cancellation notification from the parent
// context ending.
func (s *Scheduler) doneError(parent context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return ErrCallCancelled
}

type callOutcome struct {
	result any
	err    error
}
