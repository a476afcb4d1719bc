package tiller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// EngineRequest is one attempt's input to a provider engine.
type EngineRequest struct {
	RunID       string
	Provider    string
	Model       string
	System      string
	Messages    []ChatMessage
	Temperature *float64
	MaxTokens   int
	MaxSteps    int
	Metadata    map[string]string
}

// EngineDeps are the run collaborators an engine drives: the attempt bus to
// emit on, the controller for pause/stop/cancel, and the executor for tool
// dispatch. The supervisor owns the bus so it can subscribe forwarders
// before the engine starts emitting.
type EngineDeps struct {
	Bus        *EventBus
	Controller *RunController
	Executor   *ToolExecutor
	Logger     *slog.Logger
	Tracer     Tracer
}

// Engine is a provider backend capable of driving the multi-step tool loop.
//
// Start returns quickly with a live EngineRun; the loop itself runs on a
// goroutine owned by the engine. An engine must:
//
//  1. Emit run_start then status("thinking").
//  2. Stream thinking_delta/text_delta as the backend produces tokens.
//  3. After each model turn, execute every requested tool through
//     deps.Executor and feed the results back; between steps honor
//     WaitIfPaused, StopRequested, and cancellation.
//  4. Emit run_finish with the mapped finish reason (cancelled wins when the
//     controller is aborted), then finish the EngineRun.
//  5. On failure emit error, then run_finish, then finish with the cause.
type Engine interface {
	// Provider returns the provider id this engine serves.
	Provider() string
	// Available reports whether the backend is usable (credentials present).
	Available() bool
	// Start launches one attempt.
	Start(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineRun, error)
}

// EngineRun is a live attempt: an event stream plus a terminal result.
type EngineRun struct {
	bus *EventBus

	mu     sync.Mutex
	done   chan struct{}
	result RunResult
	err    error
}

// NewEngineRun wraps an attempt's bus. The engine calls Finish exactly once.
func NewEngineRun(bus *EventBus) *EngineRun {
	return &EngineRun{bus: bus, done: make(chan struct{})}
}

// Bus returns the attempt's event bus.
func (r *EngineRun) Bus() *EventBus { return r.bus }

// Events returns a fresh ordered subscription to the attempt's events.
func (r *EngineRun) Events() <-chan Event { return r.bus.Events() }

// Finish records the terminal outcome and seals the bus. Idempotent.
func (r *EngineRun) Finish(result RunResult, err error) {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return
	default:
	}
	r.result = result
	r.err = err
	close(r.done)
	r.mu.Unlock()
	r.bus.Close(err)
}

// Await blocks until the attempt finishes or ctx expires.
func (r *EngineRun) Await(ctx context.Context) (RunResult, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, r.err
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

// Done returns a channel closed when the attempt has finished.
func (r *EngineRun) Done() <-chan struct{} { return r.done }

// Close abandons the attempt: the bus seals and pending Awaits see the
// recorded result (or a nil result if the engine never finished).
func (r *EngineRun) Close() {
	r.Finish(RunResult{FinishReason: FinishOther}, nil)
}

// EngineRegistry holds the engines the supervisor may route to, keyed by
// provider id. Safe for concurrent use.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewEngineRegistry builds a registry over the given engines.
func NewEngineRegistry(engines ...Engine) *EngineRegistry {
	r := &EngineRegistry{engines: make(map[string]Engine, len(engines))}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the engine for its provider.
func (r *EngineRegistry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Provider()] = e
}

// Get returns the engine for provider, or nil.
func (r *EngineRegistry) Get(provider string) Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[provider]
}

// Availability reports, per registered provider, whether its backend is
// usable right now.
func (r *EngineRegistry) Availability() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.engines))
	for provider, e := range r.engines {
		out[provider] = e.Available()
	}
	return out
}

// Providers returns the registered provider ids, sorted.
func (r *EngineRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for provider := range r.engines {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}
