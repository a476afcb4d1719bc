package tiller

import (
	"encoding/json"
	"sync"
)

// SessionHandler receives session-update style callbacks: one OnToolCall per
// completed call/result pair, plus raw text and thinking deltas.
type SessionHandler interface {
	OnToolCall(name string, args, result json.RawMessage)
	OnMessage(text string)
	OnThought(text string)
}

// ToolCallAggregator adapts a run's event stream to a SessionHandler. It
// joins tool_call and tool_result events by call id and fires OnToolCall
// once per pair, in result order. Calls whose result never arrives (cancel,
// engine failure) are dropped silently.
//
// Feed it via bus.Subscribe(agg.Handle).
type ToolCallAggregator struct {
	handler SessionHandler

	mu      sync.Mutex
	pending map[string]ToolCall
}

// NewToolCallAggregator builds an aggregator for handler.
func NewToolCallAggregator(handler SessionHandler) *ToolCallAggregator {
	return &ToolCallAggregator{handler: handler, pending: make(map[string]ToolCall)}
}

// Handle consumes one event. Safe for concurrent use, though bus hooks
// deliver serially.
func (a *ToolCallAggregator) Handle(ev Event) {
	switch ev.Type {
	case EventTextDelta:
		a.handler.OnMessage(ev.Text)
	case EventThinkingDelta:
		a.handler.OnThought(ev.Text)
	case EventToolCall:
		if ev.Call == nil {
			return
		}
		a.mu.Lock()
		a.pending[ev.Call.ID] = *ev.Call
		a.mu.Unlock()
	case EventToolResult:
		if ev.Result == nil {
			return
		}
		a.mu.Lock()
		call, ok := a.pending[ev.Result.ID]
		delete(a.pending, ev.Result.ID)
		a.mu.Unlock()
		if !ok {
			// Result without a recorded call: engines that emit pairs
			// natively still carry the name on the result.
			call = ToolCall{ID: ev.Result.ID, Name: ev.Result.Name}
		}
		a.handler.OnToolCall(call.Name, call.Args, ev.Result.Result)
	}
}
