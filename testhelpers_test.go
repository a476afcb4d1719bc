package tiller

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// memWorkspace is an in-memory Workspace for tests. Directories are implied
// by path prefixes, matching how the localfs implementation behaves.
type memWorkspace struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemWorkspace() *memWorkspace {
	return &memWorkspace{files: make(map[string][]byte)}
}

func (w *memWorkspace) ReadFile(_ context.Context, p string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[p]
	if !ok {
		return nil, NotExistError(p)
	}
	return append([]byte(nil), data...), nil
}

func (w *memWorkspace) WriteFile(_ context.Context, p string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[p] = append([]byte(nil), data...)
	return nil
}

func (w *memWorkspace) DeletePath(_ context.Context, p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, p)
	for k := range w.files {
		if strings.HasPrefix(k, p+"/") {
			delete(w.files, k)
		}
	}
	return nil
}

func (w *memWorkspace) RenamePath(_ context.Context, from, to string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[from]
	if !ok {
		return NotExistError(from)
	}
	w.files[to] = data
	delete(w.files, from)
	return nil
}

func (w *memWorkspace) Stat(_ context.Context, p string) (*FileStat, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if data, ok := w.files[p]; ok {
		return &FileStat{IsFile: true, Size: int64(len(data))}, nil
	}
	for k := range w.files {
		if strings.HasPrefix(k, p+"/") {
			return &FileStat{IsDirectory: true}, nil
		}
	}
	return nil, nil
}

func (w *memWorkspace) ListFiles(_ context.Context, glob string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for k := range w.files {
		if glob != "" {
			if ok, _ := path.Match(glob, k); !ok {
				continue
			}
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (w *memWorkspace) content(p string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, ok := w.files[p]
	return string(data), ok
}

func (w *memWorkspace) fileCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// fakeEngine drives a scripted attempt. behave runs on its own goroutine and
// must finish the EngineRun, mirroring the engine contract.
type fakeEngine struct {
	provider  string
	available bool
	startErr  error
	behave    func(ctx context.Context, req EngineRequest, deps EngineDeps, run *EngineRun)

	mu     sync.Mutex
	starts int
}

func (e *fakeEngine) Provider() string { return e.provider }
func (e *fakeEngine) Available() bool  { return e.available }

func (e *fakeEngine) Start(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineRun, error) {
	e.mu.Lock()
	e.starts++
	e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	run := NewEngineRun(deps.Bus)
	go e.behave(ctx, req, deps, run)
	return run, nil
}

func (e *fakeEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// respondText scripts an attempt that streams text and finishes cleanly.
func respondText(text string) func(context.Context, EngineRequest, EngineDeps, *EngineRun) {
	return func(_ context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
		deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
		deps.Bus.Emit(StatusEvent(StatusThinking, ""))
		deps.Bus.Emit(TextDeltaEvent(text))
		deps.Bus.Emit(RunFinishEvent(req.RunID, FinishStop))
		run.Finish(RunResult{
			RunID:        req.RunID,
			Provider:     req.Provider,
			Model:        req.Model,
			Text:         text,
			FinishReason: FinishStop,
		}, nil)
	}
}

// failWith scripts an attempt that fails after starting.
func failWith(err error) func(context.Context, EngineRequest, EngineDeps, *EngineRun) {
	return func(_ context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
		deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
		deps.Bus.Emit(ErrorEvent(err, nil))
		deps.Bus.Emit(RunFinishEvent(req.RunID, FinishError))
		run.Finish(RunResult{}, err)
	}
}

// callToolThenFail scripts an attempt that executes one tool call, then
// fails, leaving workspace effects for the supervisor to unwind.
func callToolThenFail(tool string, args string, err error) func(context.Context, EngineRequest, EngineDeps, *EngineRun) {
	return func(ctx context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
		deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
		deps.Executor.ExecuteFromProvider(ctx, tool, json.RawMessage(args), NewID())
		deps.Bus.Emit(ErrorEvent(err, nil))
		deps.Bus.Emit(RunFinishEvent(req.RunID, FinishError))
		run.Finish(RunResult{}, err)
	}
}

// callToolThenRespond scripts an attempt that executes one tool call and
// finishes cleanly with its result attached.
func callToolThenRespond(tool string, args string, text string) func(context.Context, EngineRequest, EngineDeps, *EngineRun) {
	return func(ctx context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
		deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
		call := ToolCall{ID: NewID(), Name: tool, Args: json.RawMessage(args)}
		res, _ := deps.Executor.ExecuteFromProvider(ctx, tool, call.Args, call.ID)
		deps.Bus.Emit(TextDeltaEvent(text))
		deps.Bus.Emit(RunFinishEvent(req.RunID, FinishStop))
		run.Finish(RunResult{
			RunID:        req.RunID,
			Provider:     req.Provider,
			Model:        req.Model,
			Text:         text,
			FinishReason: FinishStop,
			ToolCalls:    []ToolCall{call},
			ToolResults:  []ToolResult{res},
		}, nil)
	}
}

// fakeStore is an in-memory ConfigStore that signals every write.
type fakeStore struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	sets   int
	wrote  chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]json.RawMessage), wrote: make(chan struct{}, 64)}
}

func (s *fakeStore) GetConfig(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *fakeStore) SetConfig(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	s.values[key] = append(json.RawMessage(nil), value...)
	s.sets++
	s.mu.Unlock()
	select {
	case s.wrote <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeStore) get(key string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// eventRecorder captures events via a bus hook, which is registered before
// the run goroutine starts and so misses nothing.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// collectEvents drains a subscription until the channel closes.
func collectEvents(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// eventTypes projects the type sequence of an event list.
func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func countType(events []Event, t EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}
