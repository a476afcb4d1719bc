package tiller

import (
	"context"
	"sync"
)

// RunController holds a run's cancellation token, pause gate, stop flag,
// and the approval rendezvous used by ask-policies.
//
// Cancel is immediate and terminal: it aborts the token, resolves every
// pending approval as denied, and wakes pause-waiters. Stop is advisory;
// engines read it between steps and exit gracefully.
// All methods are safe for concurrent use.
type RunController struct {
	mu            sync.Mutex
	done          chan struct{}
	cancelled     bool
	cancelReason  error
	paused        bool
	stopRequested bool
	waiters       []chan struct{} // FIFO pause-waiters
	approvals     map[string]chan bool
}

// NewRunController creates a controller in the running state.
func NewRunController() *RunController {
	return &RunController{
		done:      make(chan struct{}),
		approvals: make(map[string]chan bool),
	}
}

// Done returns the cancellation token. It is closed once Cancel is called.
// Long operations should select on it.
func (c *RunController) Done() <-chan struct{} { return c.done }

// Cancelled reports whether the controller has been cancelled.
func (c *RunController) Cancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the cancellation reason, or nil while running.
func (c *RunController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cancelled {
		return nil
	}
	if c.cancelReason != nil {
		return c.cancelReason
	}
	return &ErrRunCancelled{}
}

// Cancel aborts the run. Pending approvals resolve as denied and all
// pause-waiters wake. Once cancelled the controller is terminal; further
// guards fail. Idempotent.
func (c *RunController) Cancel(reason error) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.cancelReason = reason
	waiters := c.waiters
	c.waiters = nil
	approvals := c.approvals
	c.approvals = make(map[string]chan bool)
	close(c.done)
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, ch := range approvals {
		select {
		case ch <- false:
		default:
		}
	}
}

// Pause gates tool execution at the next GuardToolExecution call.
// Event emission is not paused, only tool executions are.
func (c *RunController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume releases all pause-waiters in FIFO order.
func (c *RunController) Resume() {
	c.mu.Lock()
	c.paused = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// Paused reports whether the pause gate is set.
func (c *RunController) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Stop requests a graceful exit. Engines consult StopRequested between
// steps; in-flight work completes.
func (c *RunController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
}

// StopRequested reports whether a graceful stop was requested.
func (c *RunController) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

// WaitIfPaused returns immediately unless paused; otherwise it blocks until
// Resume, Cancel, or ctx expiry. Returns the cancellation reason when the
// controller was cancelled while waiting.
func (c *RunController) WaitIfPaused(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return c.Err()
	}
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	select {
	case <-w:
		if c.Cancelled() {
			return c.Err()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestApproval blocks until the call is approved or denied, or the run
// is cancelled. Returns false immediately when already cancelled.
func (c *RunController) RequestApproval(ctx context.Context, callID string) (bool, error) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return false, nil
	}
	ch, ok := c.approvals[callID]
	if !ok {
		ch = make(chan bool, 1)
		c.approvals[callID] = ch
	}
	c.mu.Unlock()

	select {
	case allowed := <-ch:
		c.mu.Lock()
		delete(c.approvals, callID)
		c.mu.Unlock()
		return allowed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ResolveApproval resolves a pending approval. A decision arriving before
// the executor asks is buffered so the rendezvous works in either order.
// Reports whether the decision was accepted (false once cancelled).
func (c *RunController) ResolveApproval(callID string, allowed bool) bool {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return false
	}
	ch, ok := c.approvals[callID]
	if !ok {
		ch = make(chan bool, 1)
		c.approvals[callID] = ch
	}
	c.mu.Unlock()

	select {
	case ch <- allowed:
		return true
	default:
		// already resolved
		return false
	}
}

// GuardToolExecution is the pre-dispatch gate: it fails once cancelled,
// waits out a pause, then re-checks cancellation.
func (c *RunController) GuardToolExecution(ctx context.Context, toolName string) error {
	if c.Cancelled() {
		return &ErrToolCancelled{Tool: toolName}
	}
	if err := c.WaitIfPaused(ctx); err != nil {
		return &ErrToolCancelled{Tool: toolName}
	}
	if c.Cancelled() {
		return &ErrToolCancelled{Tool: toolName}
	}
	return nil
}
