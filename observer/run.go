package observer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tillerhq/tiller"
)

// RunInstrumentation turns one run's event stream into metrics. Wire it as
// an event hook:
//
//	ri := observer.NewRunInstrumentation(inst, provider, model)
//	run, err := sup.Run(ctx, tiller.RunOptions{Hooks: tiller.RunHooks{OnEvent: ri.Handle}, ...})
type RunInstrumentation struct {
	inst     *Instruments
	provider string
	model    string

	mu        sync.Mutex
	startedAt time.Time
	toolStart map[string]time.Time
}

// NewRunInstrumentation builds a per-run metrics hook.
func NewRunInstrumentation(inst *Instruments, provider, model string) *RunInstrumentation {
	return &RunInstrumentation{
		inst:      inst,
		provider:  provider,
		model:     model,
		toolStart: make(map[string]time.Time),
	}
}

// Handle consumes one run event. Hooks run synchronously on the emitting
// goroutine, so the work here stays cheap.
func (r *RunInstrumentation) Handle(ev tiller.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		AttrLLMProvider.String(r.provider),
		AttrLLMModel.String(r.model),
	)

	switch ev.Type {
	case tiller.EventRunStart:
		r.mu.Lock()
		r.startedAt = ev.At
		r.mu.Unlock()
		r.inst.Runs.Add(ctx, 1, attrs)

	case tiller.EventRunFinish:
		r.mu.Lock()
		started := r.startedAt
		r.mu.Unlock()
		if !started.IsZero() {
			r.inst.RunDuration.Record(ctx, float64(ev.At.Sub(started).Milliseconds()), attrs)
		}

	case tiller.EventToolCall:
		if ev.Call == nil {
			return
		}
		r.mu.Lock()
		r.toolStart[ev.Call.ID] = ev.At
		r.mu.Unlock()

	case tiller.EventToolResult:
		if ev.Result == nil {
			return
		}
		r.mu.Lock()
		started, ok := r.toolStart[ev.Result.ID]
		delete(r.toolStart, ev.Result.ID)
		r.mu.Unlock()

		status := "ok"
		if ev.Result.IsError {
			status = "error"
			r.inst.ToolErrors.Add(ctx, 1, metric.WithAttributes(AttrToolName.String(ev.Result.Name)))
		}
		r.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrToolName.String(ev.Result.Name),
			AttrToolStatus.String(status),
		))
		if ok {
			r.inst.ToolDuration.Record(ctx, float64(ev.At.Sub(started).Milliseconds()),
				metric.WithAttributes(AttrToolName.String(ev.Result.Name)))
		}

	case tiller.EventUsage:
		if ev.Usage == nil {
			return
		}
		r.inst.TokenUsage.Add(ctx, int64(ev.Usage.InputTokens+ev.Usage.OutputTokens), attrs)
		if cost := r.inst.Cost.Calculate(r.model, ev.Usage.InputTokens, ev.Usage.OutputTokens); cost > 0 {
			r.inst.CostTotal.Add(ctx, cost, attrs)
		}

	case tiller.EventError:
		r.inst.Failovers.Add(ctx, 1, attrs)
	}
}
