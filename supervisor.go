package tiller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SupervisorConfig wires a Supervisor.
type SupervisorConfig struct {
	// Engines maps provider ids to backends. Required.
	Engines *EngineRegistry
	// Catalog drives class-based routing. Required.
	Catalog *ModelCatalog
	// Breaker is shared failure tracking; nil gets a fresh default breaker.
	Breaker *CircuitBreaker
	// Store persists the breaker snapshot across processes. Optional.
	Store ConfigStore
	// Memory is the shared pool behind the memory tools; nil gets a fresh
	// default pool.
	Memory *MemoryPool
	Logger *slog.Logger
	Tracer Tracer
}

// Supervisor owns run orchestration: it builds the tool set, plans
// candidates, and executes attempts with failover and workspace rollback.
// One Supervisor serves many concurrent runs.
type Supervisor struct {
	engines   *EngineRegistry
	catalog   *ModelCatalog
	router    *Router
	breaker   *CircuitBreaker
	persister *breakerPersister
	memory    *MemoryPool
	store     ConfigStore
	logger    *slog.Logger
	tracer    Tracer

	loadOnce sync.Once
}

// NewSupervisor validates the config and builds a supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Engines == nil {
		return nil, &ErrAgent{Message: "supervisor requires an engine registry"}
	}
	if cfg.Catalog == nil {
		return nil, &ErrAgent{Message: "supervisor requires a model catalog"}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(BreakerConfig{})
	}
	if cfg.Memory == nil {
		cfg.Memory = NewMemoryPool()
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &Supervisor{
		engines:   cfg.Engines,
		catalog:   cfg.Catalog,
		router:    NewRouter(cfg.Catalog),
		breaker:   cfg.Breaker,
		persister: newBreakerPersister(cfg.Store, cfg.Breaker, cfg.Logger),
		memory:    cfg.Memory,
		store:     cfg.Store,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
	}, nil
}

// Memory returns the shared memory pool.
func (s *Supervisor) Memory() *MemoryPool { return s.memory }

// sharedMemoryNamespace is the default scope for the memory tools: one
// namespace across all runs, so entries survive from run to run.
const sharedMemoryNamespace = "shared"

// memoryScope resolves the memory tools' namespace: shared by default, a
// caller namespace when given, the run id when the run opts into isolation.
func (s *Supervisor) memoryScope(run *Run, opts RunOptions) *MemoryScope {
	switch {
	case opts.IsolateMemory:
		return s.memory.Scope(run.id)
	case opts.MemoryNamespace != "":
		return s.memory.Scope(opts.MemoryNamespace)
	default:
		return s.memory.Scope(sharedMemoryNamespace)
	}
}

// Run starts a supervised run. Tool name validation happens here, so a
// strict NamePolicy failure returns before anything is launched. The
// returned handle streams events and resolves once failover settles.
//
// ctx bounds the whole run: its cancellation cancels the run.
func (s *Supervisor) Run(ctx context.Context, opts RunOptions) (*Run, error) {
	rawTools := s.assembleTools(opts)
	tools, mapping, err := opts.Names.Apply(rawTools)
	if err != nil {
		return nil, &ErrAgent{Message: "tool name validation failed", Cause: err}
	}

	runID := NewID()
	bus := NewEventBus(s.logger)
	controller := NewRunController()

	run := &Run{
		id:         runID,
		bus:        bus,
		controller: controller,
		done:       make(chan struct{}),
	}
	if opts.Mode == ModePreview {
		if opts.Workspace == nil {
			return nil, &ErrAgent{Message: "preview mode requires a workspace"}
		}
		run.preview = NewPreviewWorkspace(opts.Workspace)
	}

	s.wireHooks(bus, opts.Hooks)

	runCtx, cancelCtx := context.WithCancel(ctx)
	go func() {
		select {
		case <-controller.Done():
			cancelCtx()
		case <-runCtx.Done():
			controller.Cancel(&ErrRunCancelled{Reason: "context cancelled"})
		}
	}()

	go s.runWithFailover(runCtx, run, opts, tools, mapping)
	return run, nil
}

// assembleTools builds the full tool list: filesystem (when a workspace is
// given), memory, retrieval (when a retriever is given), then user tools.
func (s *Supervisor) assembleTools(opts RunOptions) []ToolDefinition {
	var tools []ToolDefinition
	if opts.Workspace != nil {
		tools = append(tools, FSTools()...)
	}
	tools = append(tools, MemoryTools()...)
	if opts.Retriever != nil {
		tools = append(tools, RetrievalTools()...)
	}
	return append(tools, opts.Tools...)
}

func (s *Supervisor) wireHooks(bus *EventBus, hooks RunHooks) {
	if hooks.OnEvent != nil {
		bus.Subscribe(hooks.OnEvent)
	}
	if hooks.OnTextDelta != nil {
		onText := hooks.OnTextDelta
		bus.Subscribe(func(ev Event) {
			if ev.Type == EventTextDelta {
				onText(ev.Text)
			}
		})
	}
	if hooks.OnThinkingDelta != nil {
		onThinking := hooks.OnThinkingDelta
		bus.Subscribe(func(ev Event) {
			if ev.Type == EventThinkingDelta {
				onThinking(ev.Text)
			}
		})
	}
	if hooks.SessionUpdates != nil {
		agg := NewToolCallAggregator(hooks.SessionUpdates)
		bus.Subscribe(agg.Handle)
	}
}

// runWithFailover drives the candidate loop for one run. It owns the outer
// bus lifecycle: exactly one run_start and one run_finish reach it no matter
// how many attempts were made.
func (s *Supervisor) runWithFailover(ctx context.Context, run *Run, opts RunOptions, tools []ToolDefinition, mapping *NameMapping) {
	if s.tracer != nil {
		var span Span
		ctx, span = s.tracer.Start(ctx, "supervisor.run", StringAttr("run_id", run.id))
		defer span.End()
	}

	system, messages := normalizeMessages(opts)

	availability := s.engines.Availability()
	s.loadBreakerOnce(ctx)

	now := time.Now()
	plan := s.router.Plan(availability, opts.Preference, opts.Constraints, func(c Candidate) int {
		score := s.breaker.Penalty(c.Ref(), now)
		if c.Profile != nil {
			score += c.Profile.LatencyRank*10 + c.Profile.CostRank
		}
		return score
	})
	if len(plan.Candidates) == 0 {
		err := &ErrAgent{Message: "no provider candidates available"}
		run.bus.Emit(RunStartEvent(run.id, "", "", time.Now()))
		run.bus.Emit(ErrorEvent(err, nil))
		run.bus.Emit(RunFinishEvent(run.id, FinishError))
		run.finish(RunResult{RunID: run.id, FinishReason: FinishError}, err)
		return
	}

	s.logger.Info("run planned", "run_id", run.id, "candidates", plan.Refs())

	// run_start is the first event on the outer bus, so the candidates
	// status is held back until the first attempt's run_start is forwarded.
	// Attempts that fail before their engine ever emits run_start get a
	// synthetic one here.
	intro := "candidates: " + strings.Join(plan.Refs(), ", ")
	startEmitted := false
	ensureStarted := func(provider, model string) {
		if startEmitted {
			return
		}
		startEmitted = true
		run.bus.Emit(RunStartEvent(run.id, provider, model, time.Now()))
		if intro != "" {
			run.bus.Emit(StatusEvent(StatusInitialising, intro))
			intro = ""
		}
	}

	var lastErr error
	for _, candidate := range plan.Candidates {
		if run.controller.Cancelled() {
			break
		}

		result, err := s.runAttempt(ctx, run, opts, tools, mapping, candidate, system, messages, &startEmitted, &intro)
		if err == nil {
			reason := result.FinishReason
			if run.controller.Cancelled() {
				reason = FinishCancelled
				result.FinishReason = FinishCancelled
			}
			ensureStarted(candidate.Provider, candidate.Model)
			run.bus.Emit(RunFinishEvent(run.id, reason))
			run.finish(result, nil)
			return
		}
		lastErr = err

		ref := candidate.Ref()
		if !isUnavailable(err) {
			s.breaker.RecordFailure(ref, time.Now())
			s.persister.Persist()
		}
		s.logger.Warn("candidate failed", "run_id", run.id, "ref", ref, "error", err)
		ensureStarted(candidate.Provider, candidate.Model)
		run.bus.Emit(ErrorEvent(err, nil))
		run.bus.Emit(StatusEvent(StatusInitialising, "failing over from "+ref))
	}

	if run.controller.Cancelled() {
		result := RunResult{RunID: run.id, FinishReason: FinishCancelled}
		ensureStarted("", "")
		run.bus.Emit(RunFinishEvent(run.id, FinishCancelled))
		run.finish(result, nil)
		return
	}
	err := &ErrAgent{Message: "all provider candidates failed", Cause: lastErr}
	ensureStarted("", "")
	run.bus.Emit(ErrorEvent(err, nil))
	run.bus.Emit(RunFinishEvent(run.id, FinishError))
	run.finish(RunResult{RunID: run.id, FinishReason: FinishError}, err)
}

// runAttempt executes one candidate: wraps the workspace, builds the
// executor, runs the engine, and settles the workspace transaction.
func (s *Supervisor) runAttempt(
	ctx context.Context,
	run *Run,
	opts RunOptions,
	tools []ToolDefinition,
	mapping *NameMapping,
	candidate Candidate,
	system string,
	messages []ChatMessage,
	startEmitted *bool,
	intro *string,
) (RunResult, error) {
	engine := s.engines.Get(candidate.Provider)
	if engine == nil {
		return RunResult{}, &ErrProviderUnavailable{Provider: candidate.Provider, Reason: "no engine registered"}
	}
	if !engine.Available() {
		return RunResult{}, &ErrProviderUnavailable{Provider: candidate.Provider, Reason: "backend not configured"}
	}

	// Workspace transaction for this attempt: a fresh journal in live mode,
	// the run's single shared overlay in preview mode.
	var attemptWS Workspace
	var journal *JournalWorkspace
	switch {
	case run.preview != nil:
		attemptWS = run.preview
	case opts.Workspace != nil:
		journal = NewJournalWorkspace(opts.Workspace, s.logger)
		attemptWS = journal
	}

	inner := NewEventBus(s.logger)
	// The executor is the single emission point for tool_call/tool_result,
	// which keeps approval requests ordered before the call event.
	executor := NewToolExecutor(ExecutorConfig{
		Tools:          tools,
		Policy:         opts.Policy,
		Controller:     run.controller,
		Bus:            inner,
		EmitToolEvents: true,
		Context: ToolContext{
			Workspace: attemptWS,
			Memory:    s.memoryScope(run, opts),
			Retriever: opts.Retriever,
			Emit:      inner.Emit,
			Preview:   run.preview != nil,
			Metadata:  opts.Metadata,
		},
		Logger: s.logger,
		Tracer: s.tracer,
	})

	// Subscribe before Start so no engine event is missed.
	events := inner.Events()
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		s.forwardEvents(run, mapping, events, startEmitted, intro)
	}()

	engineRun, err := engine.Start(ctx, EngineRequest{
		RunID:       run.id,
		Provider:    candidate.Provider,
		Model:       candidate.Model,
		System:      system,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		MaxSteps:    opts.MaxSteps,
		Metadata:    opts.Metadata,
	}, EngineDeps{
		Bus:        inner,
		Controller: run.controller,
		Executor:   executor,
		Logger:     s.logger,
		Tracer:     s.tracer,
	})
	if err != nil {
		inner.Close(err)
		<-forwarded
		s.settleFailure(ctx, run, journal)
		return RunResult{}, err
	}

	result, err := engineRun.Await(ctx)
	<-forwarded

	if err != nil {
		s.settleFailure(ctx, run, journal)
		return RunResult{}, err
	}

	remapResult(&result, mapping)
	if journal != nil {
		journal.Commit()
	}
	s.breaker.RecordSuccess(candidate.Ref())
	s.persister.Persist()
	return result, nil
}

// settleFailure unwinds an attempt's workspace effects: reverse-replay the
// journal in live mode, drop the overlay in preview mode.
func (s *Supervisor) settleFailure(ctx context.Context, run *Run, journal *JournalWorkspace) {
	if journal != nil {
		journal.Rollback(ctx)
	}
	if run.preview != nil {
		run.preview.Discard()
	}
}

// forwardEvents copies one attempt's events to the outer bus. run_start
// passes through once per run, immediately followed by the held-back
// candidates status; run_finish never does (the failover loop emits the
// single terminal one). Tool names are remapped to the caller's originals
// on the way out.
func (s *Supervisor) forwardEvents(run *Run, mapping *NameMapping, events <-chan Event, startEmitted *bool, intro *string) {
	for ev := range events {
		switch ev.Type {
		case EventRunStart:
			if *startEmitted {
				run.bus.Emit(StatusEvent(StatusThinking, "retrying with "+ev.Provider+":"+ev.Model))
				continue
			}
			*startEmitted = true
			run.bus.Emit(ev)
			if *intro != "" {
				run.bus.Emit(StatusEvent(StatusInitialising, *intro))
				*intro = ""
			}
			continue
		case EventRunFinish:
			continue
		case EventToolCall:
			if ev.Call != nil && mapping.Changed() {
				call := *ev.Call
				call.Name = mapping.Original(call.Name)
				ev.Call = &call
			}
		case EventToolResult:
			if ev.Result != nil && mapping.Changed() {
				result := *ev.Result
				result.Name = mapping.Original(result.Name)
				ev.Result = &result
			}
		case EventToolApprovalRequest:
			if ev.Approval != nil && mapping.Changed() {
				approval := *ev.Approval
				approval.Call.Name = mapping.Original(approval.Call.Name)
				ev.Approval = &approval
			}
		case EventStepFinish:
			if ev.Step != nil && mapping.Changed() {
				step := *ev.Step
				step.ToolCalls = remapCalls(step.ToolCalls, mapping)
				step.ToolResults = remapResults(step.ToolResults, mapping)
				ev.Step = &step
			}
		}
		run.bus.Emit(ev)
	}
}

func (s *Supervisor) loadBreakerOnce(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.loadOnce.Do(func() {
		loadBreakerState(ctx, s.store, s.breaker, s.logger)
	})
}

// normalizeMessages resolves the prompt/messages/system trio: embedded
// system turns are dropped in favor of the explicit system prompt, and a
// bare prompt becomes a single user turn.
func normalizeMessages(opts RunOptions) (system string, messages []ChatMessage) {
	system = opts.System
	if len(opts.Messages) == 0 {
		return system, []ChatMessage{UserMessage(opts.Prompt)}
	}
	messages = make([]ChatMessage, 0, len(opts.Messages))
	for _, m := range opts.Messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			}
			continue
		}
		messages = append(messages, m)
	}
	return system, messages
}

func remapCalls(calls []ToolCall, mapping *NameMapping) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		c.Name = mapping.Original(c.Name)
		out[i] = c
	}
	return out
}

func remapResults(results []ToolResult, mapping *NameMapping) []ToolResult {
	out := make([]ToolResult, len(results))
	for i, r := range results {
		r.Name = mapping.Original(r.Name)
		out[i] = r
	}
	return out
}

// remapResult rewrites the terminal result's tool names to the caller's
// originals.
func remapResult(result *RunResult, mapping *NameMapping) {
	if !mapping.Changed() {
		return
	}
	result.ToolCalls = remapCalls(result.ToolCalls, mapping)
	result.ToolResults = remapResults(result.ToolResults, mapping)
}

// isUnavailable reports whether err denotes a missing or misconfigured
// backend; those failures skip the candidate without penalizing it.
func isUnavailable(err error) bool {
	var unavailable *ErrProviderUnavailable
	return errors.As(err, &unavailable)
}
