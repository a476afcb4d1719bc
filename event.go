package tiller

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of run event.
type EventType string

const (
	// EventRunStart is the first event of every run.
	EventRunStart EventType = "run_start"
	// EventStatus reports a lifecycle transition.
	EventStatus EventType = "status"
	// EventThinkingDelta carries an incremental reasoning chunk.
	EventThinkingDelta EventType = "thinking_delta"
	// EventTextDelta carries an incremental visible-output chunk.
	EventTextDelta EventType = "text_delta"
	// EventToolCall signals a tool is about to be invoked.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the result of a completed tool call.
	EventToolResult EventType = "tool_result"
	// EventToolApprovalRequest asks the caller to approve a tool call.
	EventToolApprovalRequest EventType = "tool_approval_request"
	// EventFileChange describes a workspace mutation.
	EventFileChange EventType = "file_change"
	// EventMemoryRead reports a memory pool read.
	EventMemoryRead EventType = "memory_read"
	// EventMemoryWrite reports a memory pool write.
	EventMemoryWrite EventType = "memory_write"
	// EventRetrievalQuery reports a retrieval request.
	EventRetrievalQuery EventType = "retrieval_query"
	// EventRetrievalResults carries retrieval hits.
	EventRetrievalResults EventType = "retrieval_results"
	// EventStepFinish closes one model turn of the tool loop.
	EventStepFinish EventType = "step_finish"
	// EventUsage reports token accounting.
	EventUsage EventType = "usage"
	// EventError carries a non-fatal or terminal error.
	EventError EventType = "error"
	// EventRunFinish is the last event of every run.
	EventRunFinish EventType = "run_finish"
)

// EventMeta is optional correlation metadata attached uniformly to events.
type EventMeta struct {
	AgentID  string `json:"agent_id,omitempty"`
	StepID   string `json:"step_id,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Trace    string `json:"trace,omitempty"`
}

// ApprovalRequest asks the caller to allow or deny a pending tool call.
type ApprovalRequest struct {
	Call   ToolCall `json:"call"`
	Reason string   `json:"reason,omitempty"`
	Policy string   `json:"policy,omitempty"`
}

// StepFinish summarizes one model turn: its tool calls and their results.
type StepFinish struct {
	Index        int          `json:"index"`
	FinishReason FinishReason `json:"finish_reason"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
}

// Event is the tagged union delivered on a run's event stream. Type is the
// single discriminant; only the fields for that variant are populated.
// At is monotonic within a run.
type Event struct {
	Type EventType  `json:"type"`
	At   time.Time  `json:"at"`
	Meta *EventMeta `json:"meta,omitempty"`

	// run_start / run_finish
	RunID     string       `json:"run_id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model,omitempty"`
	StartedAt time.Time    `json:"started_at,omitzero"`
	Reason    FinishReason `json:"reason,omitempty"`

	// status
	Status RunStatus `json:"status,omitempty"`
	Detail string    `json:"detail,omitempty"`

	// thinking_delta / text_delta
	Text string `json:"text,omitempty"`

	// tool_call / tool_result / tool_approval_request
	Call     *ToolCall        `json:"call,omitempty"`
	Result   *ToolResult      `json:"result,omitempty"`
	Approval *ApprovalRequest `json:"approval,omitempty"`

	// file_change
	Change *FileChange `json:"change,omitempty"`

	// memory_read / memory_write
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// retrieval_query / retrieval_results
	Query   string           `json:"query,omitempty"`
	TopK    int              `json:"top_k,omitempty"`
	Results []RetrievedChunk `json:"results,omitempty"`

	// step_finish
	Step *StepFinish `json:"step,omitempty"`

	// usage
	Usage *Usage `json:"usage,omitempty"`

	// error
	Err string          `json:"error,omitempty"`
	Raw json.RawMessage `json:"raw,omitempty"`
}

// --- constructors ---

// RunStartEvent builds the opening event of a run.
func RunStartEvent(runID, provider, model string, startedAt time.Time) Event {
	return Event{Type: EventRunStart, RunID: runID, Provider: provider, Model: model, StartedAt: startedAt}
}

// RunFinishEvent builds the closing event of a run.
func RunFinishEvent(runID string, reason FinishReason) Event {
	return Event{Type: EventRunFinish, RunID: runID, Reason: reason}
}

// StatusEvent builds a lifecycle transition event.
func StatusEvent(status RunStatus, detail string) Event {
	return Event{Type: EventStatus, Status: status, Detail: detail}
}

// TextDeltaEvent builds a visible-output chunk event.
func TextDeltaEvent(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

// ThinkingDeltaEvent builds a reasoning chunk event.
func ThinkingDeltaEvent(text string) Event {
	return Event{Type: EventThinkingDelta, Text: text}
}

// ToolCallEvent builds a tool invocation event.
func ToolCallEvent(call ToolCall) Event {
	return Event{Type: EventToolCall, Call: &call}
}

// ToolResultEvent builds a tool completion event.
func ToolResultEvent(result ToolResult) Event {
	return Event{Type: EventToolResult, Result: &result}
}

// ApprovalRequestEvent builds a tool approval request event.
func ApprovalRequestEvent(req ApprovalRequest) Event {
	return Event{Type: EventToolApprovalRequest, Approval: &req}
}

// FileChangeEvent builds a workspace mutation event.
func FileChangeEvent(change FileChange) Event {
	return Event{Type: EventFileChange, Change: &change}
}

// MemoryReadEvent builds a memory pool read event. Value is nil on a miss.
func MemoryReadEvent(key string, value json.RawMessage) Event {
	return Event{Type: EventMemoryRead, Key: key, Value: value}
}

// MemoryWriteEvent builds a memory pool write event.
func MemoryWriteEvent(key string, value json.RawMessage) Event {
	return Event{Type: EventMemoryWrite, Key: key, Value: value}
}

// RetrievalQueryEvent builds a retrieval request event.
func RetrievalQueryEvent(query string, topK int) Event {
	return Event{Type: EventRetrievalQuery, Query: query, TopK: topK}
}

// RetrievalResultsEvent builds a retrieval hits event.
func RetrievalResultsEvent(query string, results []RetrievedChunk) Event {
	return Event{Type: EventRetrievalResults, Query: query, Results: results}
}

// ErrorEvent builds an error event.
func ErrorEvent(err error, raw json.RawMessage) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: EventError, Err: msg, Raw: raw}
}

// UsageEvent builds a token accounting event.
func UsageEvent(u Usage) Event {
	return Event{Type: EventUsage, Usage: &u}
}

// StepFinishEvent builds a step summary event.
func StepFinishEvent(step StepFinish) Event {
	return Event{Type: EventStepFinish, Step: &step}
}
