package openaicompat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tillerhq/tiller"
)

// DefaultMaxSteps caps model turns when the request does not set a limit.
const DefaultMaxSteps = 8

// maxToolResultRunes caps how much of a tool result is fed back into the
// conversation. The full result still reaches the event stream.
const maxToolResultRunes = 8192

// loop drives one attempt end to end: stream a turn, execute its tool
// calls, feed results back, repeat until the model stops calling tools or a
// boundary (maxSteps, stop, cancel) is hit.
func (e *Engine) loop(ctx context.Context, req tiller.EngineRequest, deps tiller.EngineDeps, run *tiller.EngineRun) {
	bus := deps.Bus
	controller := deps.Controller

	bus.Emit(tiller.RunStartEvent(req.RunID, req.Provider, req.Model, time.Now()))
	bus.Emit(tiller.StatusEvent(tiller.StatusThinking, ""))

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	messages := make([]tiller.ChatMessage, len(req.Messages))
	copy(messages, req.Messages)

	defs := make(map[string]tiller.ToolDefinition)
	for _, d := range deps.Executor.Definitions() {
		defs[d.Name] = d
	}
	pending := newPendingCalls()

	result := tiller.RunResult{RunID: req.RunID, Provider: req.Provider, Model: req.Model}
	var text, thinking strings.Builder

	finish := func(reason tiller.FinishReason, err error) {
		if controller.Cancelled() {
			reason = tiller.FinishCancelled
			err = nil
		}
		result.Text = text.String()
		result.Thinking = thinking.String()
		result.FinishReason = reason
		bus.Emit(tiller.RunFinishEvent(req.RunID, reason))
		run.Finish(result, err)
	}

	for step := 0; step < maxSteps; step++ {
		if err := controller.WaitIfPaused(ctx); err != nil {
			finish(tiller.FinishCancelled, nil)
			return
		}
		if controller.Cancelled() {
			finish(tiller.FinishCancelled, nil)
			return
		}
		if controller.StopRequested() {
			e.logger.Info("stop requested, exiting loop", "run_id", req.RunID, "step", step)
			finish(tiller.FinishCancelled, nil)
			return
		}

		turn, err := e.streamTurn(ctx, req, messages, deps)
		if err != nil {
			bus.Emit(tiller.ErrorEvent(err, nil))
			finish(tiller.FinishError, err)
			return
		}

		text.WriteString(turn.Content)
		thinking.WriteString(turn.Thinking)
		result.Usage.Add(turn.Usage)
		if turn.Usage != (tiller.Usage{}) {
			bus.Emit(tiller.UsageEvent(turn.Usage))
		}

		// Final turn: the model produced no tool calls.
		if len(turn.ToolCalls) == 0 {
			reason := mapFinishReason(turn.FinishReason)
			bus.Emit(tiller.StepFinishEvent(tiller.StepFinish{Index: step, FinishReason: reason}))
			finish(reason, nil)
			return
		}

		calls := pending.Assign(turn.ToolCalls, step)
		bus.Emit(tiller.StatusEvent(tiller.StatusActing, ""))
		messages = append(messages, tiller.ChatMessage{
			Role:      "assistant",
			Content:   turn.Content,
			ToolCalls: calls,
		})

		stepResults := make([]tiller.ToolResult, 0, len(calls))
		for _, call := range calls {
			res, execErr := e.executeCall(ctx, call, defs, deps)
			if res.ID == "" {
				res.ID = pending.Recover(call)
			}
			stepResults = append(stepResults, res)
			result.ToolCalls = append(result.ToolCalls, call)
			result.ToolResults = append(result.ToolResults, res)
			messages = append(messages, tiller.ToolResultMessage(call.ID, truncateResult(string(res.Result))))

			// Only cancellation surfaces as an error; everything else came
			// back as an error result and the loop continues.
			if execErr != nil {
				bus.Emit(tiller.StepFinishEvent(tiller.StepFinish{
					Index:        step,
					FinishReason: tiller.FinishCancelled,
					ToolCalls:    calls,
					ToolResults:  stepResults,
				}))
				finish(tiller.FinishCancelled, nil)
				return
			}
		}

		bus.Emit(tiller.StepFinishEvent(tiller.StepFinish{
			Index:        step,
			FinishReason: tiller.FinishToolCalls,
			ToolCalls:    calls,
			ToolResults:  stepResults,
		}))
		bus.Emit(tiller.StatusEvent(tiller.StatusThinking, ""))
	}

	e.logger.Warn("max steps reached", "run_id", req.RunID, "max_steps", maxSteps)
	finish(tiller.FinishToolCalls, nil)
}

// executeCall validates arguments against the tool's schema, then dispatches
// through the executor. Validation failures become error results without
// dispatch, so the model can correct itself on the next turn.
func (e *Engine) executeCall(ctx context.Context, call tiller.ToolCall, defs map[string]tiller.ToolDefinition, deps tiller.EngineDeps) (tiller.ToolResult, error) {
	if e.validate {
		if def, ok := defs[call.Name]; ok {
			if err := e.schemas.Validate(def, call.Args); err != nil {
				e.logger.Debug("tool args rejected", "tool", call.Name, "error", err)
				return errorResult(call, err), nil
			}
		}
	}
	return deps.Executor.ExecuteFromProvider(ctx, call.Name, call.Args, call.ID)
}

func errorResult(call tiller.ToolCall, err error) tiller.ToolResult {
	msg, _ := json.Marshal(err.Error())
	return tiller.ToolResult{ID: call.ID, Name: call.Name, Result: msg, IsError: true}
}

// mapFinishReason converts a backend finish_reason to the unified set.
func mapFinishReason(reason string) tiller.FinishReason {
	switch reason {
	case "stop", "":
		return tiller.FinishStop
	case "length":
		return tiller.FinishLength
	case "tool_calls", "function_call":
		return tiller.FinishToolCalls
	default:
		return tiller.FinishOther
	}
}

// truncateResult caps a tool result string at the conversation budget.
func truncateResult(s string) string {
	runes := []rune(s)
	if len(runes) <= maxToolResultRunes {
		return s
	}
	return string(runes[:maxToolResultRunes]) + "\n[truncated]"
}
