package tiller

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSupervisor(t *testing.T, cfg SupervisorConfig) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return sup
}

// twoProviderSetup wires two providers, alpha preferred by rank.
func twoProviderSetup(alpha, beta *fakeEngine) SupervisorConfig {
	return SupervisorConfig{
		Engines: NewEngineRegistry(alpha, beta),
		Catalog: NewModelCatalog(
			ModelProfile{Provider: "alpha", Model: "m1", Classes: []ModelClass{ClassFast}, LatencyRank: 1, CostRank: 1},
			ModelProfile{Provider: "beta", Model: "m2", Classes: []ModelClass{ClassFast}, LatencyRank: 2, CostRank: 2},
		),
	}
}

func TestRunFirstCandidateSucceeds(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true, behave: respondText("hello from alpha")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("hello from beta")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	rec := &eventRecorder{}
	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "hi",
		Preference: RoutePreference{AllowFallback: true},
		Hooks:      RunHooks{OnEvent: rec.record},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Text != "hello from alpha" || result.Provider != "alpha" {
		t.Errorf("unexpected result: %+v", result)
	}
	if beta.startCount() != 0 {
		t.Error("second candidate must not start when the first succeeds")
	}

	got := rec.all()
	if countType(got, EventRunStart) != 1 {
		t.Errorf("expected exactly one run_start, got %d", countType(got, EventRunStart))
	}
	if countType(got, EventRunFinish) != 1 {
		t.Errorf("expected exactly one run_finish, got %d", countType(got, EventRunFinish))
	}
	if got[0].Type != EventRunStart {
		t.Errorf("run_start must be the first event, got %v", eventTypes(got))
	}
	if got[1].Type != EventStatus || !strings.HasPrefix(got[1].Detail, "candidates: ") {
		t.Errorf("candidates status should directly follow run_start: %+v", got[1])
	}
	if last := got[len(got)-1]; last.Type != EventRunFinish || last.Reason != FinishStop {
		t.Errorf("run_finish should close the stream: %+v", last)
	}
}

func TestRunFailsOverToNextCandidate(t *testing.T) {
	streamErr := &ErrEngine{Provider: "alpha", Model: "m1", Message: "stream broke"}
	base := newMemWorkspace()
	base.WriteFile(context.Background(), "data.txt", []byte("pristine"))

	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenFail("fs_write_file", `{"path":"data.txt","content":"tainted"}`, streamErr)}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("recovered")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	rec := &eventRecorder{}
	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Workspace:  base,
		Preference: RoutePreference{AllowFallback: true},
		Hooks:      RunHooks{OnEvent: rec.record},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("failover should recover: %v", err)
	}
	if result.Provider != "beta" || result.Text != "recovered" {
		t.Errorf("unexpected result: %+v", result)
	}

	// The failed attempt's workspace effects are rolled back.
	if got, _ := base.content("data.txt"); got != "pristine" {
		t.Errorf("journal rollback missing: %q", got)
	}

	// The failed ref carries a breaker penalty; the successful one does not.
	if sup.breaker.Penalty("alpha:m1", time.Now()) == 0 {
		t.Error("failed candidate should be penalized")
	}
	if sup.breaker.Penalty("beta:m2", time.Now()) != 0 {
		t.Error("successful candidate should stay clean")
	}

	got := rec.all()
	if got[0].Type != EventRunStart {
		t.Errorf("run_start must be the first event, got %v", eventTypes(got))
	}
	if countType(got, EventRunStart) != 1 {
		t.Errorf("failover must not duplicate run_start, got %d", countType(got, EventRunStart))
	}
	if countType(got, EventRunFinish) != 1 {
		t.Errorf("failover must not duplicate run_finish, got %d", countType(got, EventRunFinish))
	}
	if countType(got, EventError) == 0 {
		t.Error("the failed attempt should surface an error event")
	}
}

func TestRunAllCandidatesFail(t *testing.T) {
	boom := errors.New("backend down")
	alpha := &fakeEngine{provider: "alpha", available: true, behave: failWith(boom)}
	beta := &fakeEngine{provider: "beta", available: true, behave: failWith(boom)}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := run.Await(context.Background())
	var agentErr *ErrAgent
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected agent error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("terminal error should wrap the last attempt failure")
	}
	if result.FinishReason != FinishError {
		t.Errorf("expected error finish, got %s", result.FinishReason)
	}
	if alpha.startCount() != 1 || beta.startCount() != 1 {
		t.Errorf("both candidates should be attempted: %d, %d", alpha.startCount(), beta.startCount())
	}
}

func TestRunSkipsUnavailableWithoutPenalty(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: false, behave: respondText("never")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("ok")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := run.Await(context.Background())
	if err != nil || result.Provider != "beta" {
		t.Fatalf("run should land on the available provider: %+v %v", result, err)
	}
	if sup.breaker.Penalty("alpha:m1", time.Now()) != 0 {
		t.Error("an unavailable backend is a config issue, not a health failure")
	}
}

func TestRunNoCandidates(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: false, behave: respondText("never")}
	sup := newTestSupervisor(t, SupervisorConfig{
		Engines: NewEngineRegistry(alpha),
		Catalog: NewModelCatalog(
			ModelProfile{Provider: "alpha", Model: "m1", Classes: []ModelClass{ClassFast}},
		),
	})

	rec := &eventRecorder{}
	run, err := sup.Run(context.Background(), RunOptions{Prompt: "go", Hooks: RunHooks{OnEvent: rec.record}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = run.Await(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no provider candidates") {
		t.Errorf("expected no-candidates failure, got %v", err)
	}

	// Even a run that never reaches an engine opens with run_start.
	got := rec.all()
	if len(got) == 0 || got[0].Type != EventRunStart {
		t.Errorf("run_start must be the first event, got %v", eventTypes(got))
	}
	if got[len(got)-1].Type != EventRunFinish {
		t.Errorf("run_finish should close the stream: %v", eventTypes(got))
	}
}

func TestRunStartFirstWhenEngineFailsToStart(t *testing.T) {
	// The first candidate dies inside Start, before its engine can emit
	// anything; the supervisor fills in the run's single run_start so the
	// error and failover status never lead the stream.
	alpha := &fakeEngine{provider: "alpha", available: true, startErr: errors.New("boot failure")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("recovered")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	rec := &eventRecorder{}
	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
		Hooks:      RunHooks{OnEvent: rec.record},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("failover should recover: %v", err)
	}
	if result.Provider != "beta" {
		t.Errorf("unexpected provider: %s", result.Provider)
	}

	got := rec.all()
	if got[0].Type != EventRunStart || got[0].Provider != "alpha" {
		t.Errorf("synthetic run_start for the failed candidate should lead: %+v", got[0])
	}
	if countType(got, EventRunStart) != 1 {
		t.Errorf("expected exactly one run_start, got %d", countType(got, EventRunStart))
	}
}

func TestRunCancel(t *testing.T) {
	started := make(chan struct{})
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: func(ctx context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
			deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
			close(started)
			<-deps.Controller.Done()
			deps.Bus.Emit(RunFinishEvent(req.RunID, FinishCancelled))
			run.Finish(RunResult{RunID: req.RunID, FinishReason: FinishCancelled}, nil)
		}}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("never")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started
	run.Cancel()

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("cancellation is not an error outcome: %v", err)
	}
	if result.FinishReason != FinishCancelled {
		t.Errorf("expected cancelled finish, got %s", result.FinishReason)
	}
	if beta.startCount() != 0 {
		t.Error("cancelled run must not fail over")
	}
}

func TestRunContextCancellation(t *testing.T) {
	started := make(chan struct{})
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: func(ctx context.Context, req EngineRequest, deps EngineDeps, run *EngineRun) {
			deps.Bus.Emit(RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
			close(started)
			<-deps.Controller.Done()
			run.Finish(RunResult{RunID: req.RunID, FinishReason: FinishCancelled}, nil)
		}}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("never")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	ctx, cancel := context.WithCancel(context.Background())
	run, err := sup.Run(ctx, RunOptions{Prompt: "go", Preference: RoutePreference{AllowFallback: true}})
	if err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("context cancellation is not an error outcome: %v", err)
	}
	if result.FinishReason != FinishCancelled {
		t.Errorf("expected cancelled finish, got %s", result.FinishReason)
	}
}

func TestRunPreviewBuffersAndCommits(t *testing.T) {
	base := newMemWorkspace()
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenRespond("fs_write_file", `{"path":"out.txt","content":"previewed"}`, "done")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("unused")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Workspace:  base,
		Mode:       ModePreview,
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	if base.fileCount() != 0 {
		t.Fatal("preview effects must not reach the base before commit")
	}
	if err := run.CommitPreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, _ := base.content("out.txt"); got != "previewed" {
		t.Errorf("committed preview missing: %q", got)
	}
}

func TestRunPreviewDiscardedOnFailedAttempt(t *testing.T) {
	base := newMemWorkspace()
	streamErr := &ErrEngine{Provider: "alpha", Model: "m1", Message: "broke"}
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenFail("fs_write_file", `{"path":"junk.txt","content":"tainted"}`, streamErr)}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("clean")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Workspace:  base,
		Mode:       ModePreview,
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The failed attempt's overlay entries were discarded; commit is a no-op.
	if err := run.CommitPreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	if base.fileCount() != 0 {
		t.Error("discarded overlay must not leak into the base")
	}
}

func TestRunPreviewRequiresWorkspace(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true, behave: respondText("x")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	if _, err := sup.Run(context.Background(), RunOptions{Prompt: "go", Mode: ModePreview}); err == nil {
		t.Fatal("preview without a workspace should be rejected")
	}
}

func TestCommitPreviewOnLiveRun(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true, behave: respondText("x")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{Prompt: "go", Preference: RoutePreference{AllowFallback: true}})
	if err != nil {
		t.Fatal(err)
	}
	run.Await(context.Background())
	if err := run.CommitPreview(context.Background()); !errors.Is(err, ErrNotPreview) {
		t.Errorf("live run commit should report ErrNotPreview, got %v", err)
	}
}

func TestRunStrictNameFailureIsSynchronous(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true, behave: respondText("x")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	_, err := sup.Run(context.Background(), RunOptions{
		Prompt: "go",
		Tools: []ToolDefinition{{Name: "bad name!", Execute: func(context.Context, json.RawMessage, *ToolContext) (any, error) {
			return nil, nil
		}}},
	})
	if err == nil {
		t.Fatal("strict name validation should fail before launch")
	}
	var nameErr *NameError
	if !errors.As(err, &nameErr) {
		t.Errorf("cause should be a NameError, got %v", err)
	}
}

func TestRunSanitizedNamesRemappedOnEgress(t *testing.T) {
	called := false
	userTool := ToolDefinition{
		Name:        "my tool",
		Description: "user tool with an unsafe name",
		InputSchema: json.RawMessage(`{"type":"object"}`),
		Execute: func(context.Context, json.RawMessage, *ToolContext) (any, error) {
			called = true
			return "ok", nil
		},
	}
	// The engine sees the sanitized provider-facing name.
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenRespond("my_tool", `{}`, "done")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	rec := &eventRecorder{}
	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Tools:      []ToolDefinition{userTool},
		Names:      NamePolicy{Mode: NameSanitize},
		Preference: RoutePreference{AllowFallback: true},
		Hooks:      RunHooks{OnEvent: rec.record},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("sanitized tool never executed")
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "my tool" {
		t.Errorf("result tool names should be the caller's originals: %+v", result.ToolCalls)
	}

	for _, ev := range rec.all() {
		if ev.Type == EventToolCall && ev.Call.Name != "my tool" {
			t.Errorf("egress tool_call should carry the original name, got %q", ev.Call.Name)
		}
		if ev.Type == EventToolResult && ev.Result.Name != "my tool" {
			t.Errorf("egress tool_result should carry the original name, got %q", ev.Result.Name)
		}
	}
}

func TestRunPersistsBreakerState(t *testing.T) {
	store := newFakeStore()
	boom := errors.New("down")
	alpha := &fakeEngine{provider: "alpha", available: true, behave: failWith(boom)}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("ok")}
	cfg := twoProviderSetup(alpha, beta)
	cfg.Store = store
	sup := newTestSupervisor(t, cfg)

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-store.wrote:
	case <-time.After(time.Second):
		t.Fatal("breaker snapshot never persisted")
	}

	raw := store.get("routing:circuitBreaker:v1")
	var snap BreakerSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("persisted snapshot unreadable: %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("snapshot version wrong: %d", snap.Version)
	}
}

func TestRunRestoresBreakerState(t *testing.T) {
	// Pre-open alpha's circuit so the plan orders beta first.
	store := newFakeStore()
	snap := BreakerSnapshot{Version: 1, Entries: map[string]BreakerSnapshotEntry{
		"alpha:m1": {ConsecutiveFailures: 5, OpenUntil: time.Now().Add(time.Hour).UnixMilli()},
	}}
	raw, _ := json.Marshal(snap)
	store.SetConfig(context.Background(), "routing:circuitBreaker:v1", raw)

	alpha := &fakeEngine{provider: "alpha", available: true, behave: respondText("from alpha")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("from beta")}
	cfg := twoProviderSetup(alpha, beta)
	cfg.Store = store
	sup := newTestSupervisor(t, cfg)

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "go",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Provider != "beta" {
		t.Errorf("open circuit should demote alpha, got %s", result.Provider)
	}
}

// memoryGetOutcome decodes a run's single memory_get tool result.
func memoryGetOutcome(t *testing.T, result RunResult) (bool, string) {
	t.Helper()
	if len(result.ToolResults) != 1 {
		t.Fatalf("expected one tool result, got %+v", result.ToolResults)
	}
	var out struct {
		Found bool            `json:"found"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(result.ToolResults[0].Result, &out); err != nil {
		t.Fatal(err)
	}
	return out.Found, string(out.Value)
}

func TestRunsShareMemoryByDefault(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenRespond("memory_set", `{"key":"color","value":"teal"}`, "saved")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "remember",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A follow-up run on the same supervisor sees the stored key.
	alpha.behave = callToolThenRespond("memory_get", `{"key":"color"}`, "recalled")
	run2, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "recall",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := run2.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if found, value := memoryGetOutcome(t, result); !found || value != `"teal"` {
		t.Errorf("cross-run read wrong: found=%v value=%s", found, value)
	}
}

func TestRunIsolatedMemoryHidesSharedKeys(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenRespond("memory_set", `{"key":"secret","value":"s1"}`, "saved")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:     "remember",
		Preference: RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	// An isolated run lives in its own namespace and misses the shared key.
	alpha.behave = callToolThenRespond("memory_get", `{"key":"secret"}`, "recalled")
	run2, err := sup.Run(context.Background(), RunOptions{
		Prompt:        "recall",
		IsolateMemory: true,
		Preference:    RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := run2.Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if found, _ := memoryGetOutcome(t, result); found {
		t.Error("isolated run should not see the shared namespace")
	}
}

func TestRunMemoryNamespacePartitions(t *testing.T) {
	alpha := &fakeEngine{provider: "alpha", available: true,
		behave: callToolThenRespond("memory_set", `{"key":"k","value":1}`, "saved")}
	beta := &fakeEngine{provider: "beta", available: true, behave: respondText("x")}
	sup := newTestSupervisor(t, twoProviderSetup(alpha, beta))

	run, err := sup.Run(context.Background(), RunOptions{
		Prompt:          "remember",
		MemoryNamespace: "session-1",
		Preference:      RoutePreference{AllowFallback: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run.Await(context.Background()); err != nil {
		t.Fatal(err)
	}

	alpha.behave = callToolThenRespond("memory_get", `{"key":"k"}`, "recalled")
	for _, tc := range []struct {
		namespace string
		want      bool
	}{
		{"session-1", true},
		{"session-2", false},
	} {
		run2, err := sup.Run(context.Background(), RunOptions{
			Prompt:          "recall",
			MemoryNamespace: tc.namespace,
			Preference:      RoutePreference{AllowFallback: true},
		})
		if err != nil {
			t.Fatal(err)
		}
		result, err := run2.Await(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if found, _ := memoryGetOutcome(t, result); found != tc.want {
			t.Errorf("namespace %s: found=%v, want %v", tc.namespace, found, tc.want)
		}
	}
}

func TestNewSupervisorValidation(t *testing.T) {
	if _, err := NewSupervisor(SupervisorConfig{Catalog: NewModelCatalog()}); err == nil {
		t.Error("missing engines should be rejected")
	}
	if _, err := NewSupervisor(SupervisorConfig{Engines: NewEngineRegistry()}); err == nil {
		t.Error("missing catalog should be rejected")
	}
}
