package tiller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ExecutorConfig wires a ToolExecutor for one attempt.
type ExecutorConfig struct {
	Tools      []ToolDefinition
	Policy     ToolPolicy
	Controller *RunController
	Bus        *EventBus
	Context    ToolContext
	// EmitToolEvents makes the executor emit tool_call/tool_result pairs
	// itself. Set false for engines that emit them natively.
	EmitToolEvents bool
	Logger         *slog.Logger
	Tracer         Tracer
}

// ToolExecutor is the single dispatch point for tool calls arriving from a
// provider engine. It enforces the tool policy, runs the approval
// rendezvous, contains execution failures, and emits tool events.
//
// Tool executions are serial within a run; the executor carries no
// cross-call state beyond its configuration.
type ToolExecutor struct {
	defs           map[string]*ToolDefinition
	ordered        []ToolDefinition
	policy         ToolPolicy
	controller     *RunController
	bus            *EventBus
	toolCtx        ToolContext
	emitToolEvents bool
	logger         *slog.Logger
	tracer         Tracer
}

// NewToolExecutor builds an executor. A nil policy allows everything; a nil
// logger falls back to a no-op.
func NewToolExecutor(cfg ExecutorConfig) *ToolExecutor {
	if cfg.Policy == nil {
		cfg.Policy = AllowAllPolicy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	defs := make(map[string]*ToolDefinition, len(cfg.Tools))
	for i := range cfg.Tools {
		defs[cfg.Tools[i].Name] = &cfg.Tools[i]
	}
	return &ToolExecutor{
		defs:           defs,
		ordered:        cfg.Tools,
		policy:         cfg.Policy,
		controller:     cfg.Controller,
		bus:            cfg.Bus,
		toolCtx:        cfg.Context,
		emitToolEvents: cfg.EmitToolEvents,
		logger:         cfg.Logger,
		tracer:         cfg.Tracer,
	}
}

// Definitions returns the tool definitions in registration order, for the
// engine to advertise to the backend.
func (e *ToolExecutor) Definitions() []ToolDefinition { return e.ordered }

// ExecuteFromProvider runs one tool call from the engine.
//
// Policy denials and user denials become error ToolResults; the engine
// loop must see a result to continue stably. Only cancellation propagates
// as a non-nil error (alongside an error result), so the engine can abort.
func (e *ToolExecutor) ExecuteFromProvider(ctx context.Context, toolName string, args json.RawMessage, callID string) (ToolResult, error) {
	call := ToolCall{ID: callID, Name: toolName, Args: args}

	if e.tracer != nil {
		var span Span
		ctx, span = e.tracer.Start(ctx, "tool.execute", StringAttr("tool", toolName))
		defer span.End()
	}

	def, ok := e.defs[toolName]
	if !ok {
		err := &ErrToolDenied{Tool: toolName, Reason: "Unknown tool"}
		return e.deniedResult(call, err), nil
	}

	if err := e.controller.GuardToolExecution(ctx, toolName); err != nil {
		return e.errorResult(call, err), err
	}

	switch d := e.policy.Decide(ctx, call, def); d.Kind {
	case DecisionDeny:
		err := &ErrToolDenied{Tool: toolName, Reason: d.Reason, Policy: d.Policy}
		return e.deniedResult(call, err), nil
	case DecisionAsk:
		e.bus.Emit(ApprovalRequestEvent(ApprovalRequest{Call: call, Reason: d.Reason, Policy: d.Policy}))
		allowed, err := e.controller.RequestApproval(ctx, callID)
		if err != nil {
			cancelErr := &ErrToolCancelled{Tool: toolName}
			return e.errorResult(call, cancelErr), cancelErr
		}
		if !allowed {
			denied := &ErrToolDenied{Tool: toolName, Reason: "User denied approval", Policy: d.Policy}
			return e.deniedResult(call, denied), nil
		}
	}

	if e.emitToolEvents {
		e.bus.Emit(ToolCallEvent(call))
	}

	start := time.Now()
	result := e.invoke(ctx, def, call)
	e.logger.Debug("tool executed",
		"tool", toolName,
		"call_id", callID,
		"is_error", result.IsError,
		"duration", time.Since(start))

	if e.emitToolEvents {
		e.bus.Emit(ToolResultEvent(result))
	}
	return result, nil
}

// invoke runs the tool function with panic containment. Failures become
// error results and never propagate to the provider loop.
func (e *ToolExecutor) invoke(ctx context.Context, def *ToolDefinition, call ToolCall) (result ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Warn("tool panic", "tool", call.Name, "panic", p)
			result = e.errorResult(call, fmt.Errorf("tool %q panic: %v", call.Name, p))
		}
	}()

	if def.Execute == nil {
		return e.errorResult(call, fmt.Errorf("tool %q has no executor", call.Name))
	}
	out, err := def.Execute(ctx, call.Args, &e.toolCtx)
	if err != nil {
		return e.errorResult(call, err)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return e.errorResult(call, fmt.Errorf("tool %q result not serializable: %w", call.Name, err))
	}
	return ToolResult{ID: call.ID, Name: call.Name, Result: raw}
}

func (e *ToolExecutor) deniedResult(call ToolCall, err *ErrToolDenied) ToolResult {
	return e.errorResult(call, err)
}

func (e *ToolExecutor) errorResult(call ToolCall, err error) ToolResult {
	msg, _ := json.Marshal(err.Error())
	return ToolResult{ID: call.ID, Name: call.Name, Result: msg, IsError: true}
}
