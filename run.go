package tiller

import (
	"context"
	"errors"
	"fmt"
)

// WorkspaceMode selects how a run's file effects reach the base workspace.
type WorkspaceMode string

const (
	// ModeLive applies effects directly, guarded by a per-attempt journal
	// that rolls back on failover.
	ModeLive WorkspaceMode = "live"
	// ModePreview buffers effects in an overlay until CommitPreview.
	ModePreview WorkspaceMode = "preview"
)

// RunHooks are optional caller callbacks wired as bus subscribers. They run
// synchronously on the emitting goroutine; panics are swallowed by the bus.
type RunHooks struct {
	OnEvent         func(Event)
	OnTextDelta     func(string)
	OnThinkingDelta func(string)
	// SessionUpdates joins call/result pairs and receives text/thinking
	// deltas, for callers speaking a session-update style protocol.
	SessionUpdates SessionHandler
}

// RunOptions configure one supervised run.
type RunOptions struct {
	// Prompt is the user request. Ignored when Messages is set.
	Prompt string
	// Messages is an ordered conversation to continue. Embedded system
	// turns are dropped in favor of System.
	Messages []ChatMessage
	// System is the system prompt, prepended to the conversation.
	System string

	// Preference and Constraints steer the router.
	Preference  RoutePreference
	Constraints RouteConstraints

	Temperature *float64
	MaxTokens   int
	// MaxSteps caps model turns of the tool loop. Zero means the engine
	// default.
	MaxSteps int

	// Workspace is the base workspace. Required when any FS tool may run.
	Workspace Workspace
	// Mode defaults to ModeLive.
	Mode WorkspaceMode

	// Policy gates tool calls; nil allows everything.
	Policy ToolPolicy
	// Tools are caller-supplied tools appended after the built-ins.
	Tools []ToolDefinition
	// Retriever enables the retrieve_context tool.
	Retriever Retriever
	// Names defaults to strict validation.
	Names NamePolicy

	// MemoryNamespace partitions the memory tools' keys. Empty uses a
	// namespace shared by every run on the supervisor, so follow-up runs
	// can read what earlier ones stored.
	MemoryNamespace string
	// IsolateMemory scopes the memory tools to this run's id, hiding its
	// keys from all other runs. Takes precedence over MemoryNamespace.
	IsolateMemory bool

	Metadata map[string]string
	Hooks    RunHooks
}

// Run is the handle for one supervised run. All methods are safe for
// concurrent use.
type Run struct {
	id         string
	bus        *EventBus
	controller *RunController
	preview    *PreviewWorkspace // nil in live mode

	done   chan struct{}
	result RunResult
	err    error
}

// ID returns the run id (UUIDv7, time-sortable).
func (r *Run) ID() string { return r.id }

// Events returns a fresh ordered subscription to the run's event stream.
// The channel closes after run_finish is delivered.
func (r *Run) Events() <-chan Event { return r.bus.Events() }

// Done returns a channel closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Await blocks until the run finishes or ctx expires.
func (r *Run) Await(ctx context.Context) (RunResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

// Result returns the terminal result. Only meaningful after Done is closed;
// before that it returns a zero result and nil error.
func (r *Run) Result() (RunResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	default:
		return RunResult{}, nil
	}
}

// Pause gates tool execution until Resume. Streaming continues; the gate is
// consulted before each tool dispatch and between steps.
func (r *Run) Pause() { r.controller.Pause() }

// Resume releases a pause.
func (r *Run) Resume() { r.controller.Resume() }

// Stop requests a graceful exit at the next step boundary.
func (r *Run) Stop() { r.controller.Stop() }

// Cancel aborts the run immediately. Pending approvals resolve as denied.
func (r *Run) Cancel() {
	r.controller.Cancel(&ErrRunCancelled{Reason: "cancelled by caller"})
}

// ApproveToolCall resolves a pending approval request by call id. Reports
// whether the decision was accepted.
func (r *Run) ApproveToolCall(callID string, allowed bool) bool {
	return r.controller.ResolveApproval(callID, allowed)
}

// ErrNotPreview reports a preview operation on a live-mode run.
var ErrNotPreview = errors.New("run is not in preview mode")

// CommitPreview applies the buffered overlay to the base workspace. Only
// valid in preview mode, after the run has finished.
func (r *Run) CommitPreview(ctx context.Context) error {
	if r.preview == nil {
		return ErrNotPreview
	}
	select {
	case <-r.done:
	default:
		return fmt.Errorf("cannot commit preview while the run is active")
	}
	return r.preview.Commit(ctx)
}

// DiscardPreview drops the buffered overlay. Only valid in preview mode.
func (r *Run) DiscardPreview() error {
	if r.preview == nil {
		return ErrNotPreview
	}
	r.preview.Discard()
	return nil
}

// finish records the terminal outcome and seals the bus. The supervisor
// emits run_finish before calling this.
func (r *Run) finish(result RunResult, err error) {
	select {
	case <-r.done:
		return
	default:
	}
	r.result = result
	r.err = err
	close(r.done)
	r.bus.Close(err)
}
