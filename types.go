package tiller

import (
	"context"
	"encoding/json"
)

// --- LLM protocol types ---

// ChatMessage is one turn in the conversation sent to a provider backend.
type ChatMessage struct {
	Role       string          `json:"role"` // "system", "user", "assistant", "tool"
	Content    string          `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"` // provider-specific
}

// UserMessage builds a user-role message.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// ToolResultMessage builds a tool-role message carrying a serialized result.
func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

// ToolCall is a tool invocation requested by the model.
// IDs are unique within a run; they are assigned at call emission when the
// backend does not provide one.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the outcome of a single tool call. ID matches the call.
// IsError signals Content carries an error message rather than a result;
// the engine loop still feeds it back to the model so the run stays stable.
type ToolResult struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Result  json.RawMessage `json:"result"`
	IsError bool            `json:"is_error,omitempty"`
}

// Usage is token accounting reported by the backend.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.TotalTokens += u2.TotalTokens
}

// FinishReason classifies why a run (or step) ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishCancelled FinishReason = "cancelled"
	FinishError     FinishReason = "error"
	FinishOther     FinishReason = "other"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusInitialising RunStatus = "initialising"
	StatusThinking     RunStatus = "thinking"
	StatusResponding   RunStatus = "responding"
	StatusActing       RunStatus = "acting"
	StatusPaused       RunStatus = "paused"
	StatusStopping     RunStatus = "stopping"
	StatusFinished     RunStatus = "finished"
	StatusError        RunStatus = "error"
)

// RunResult is the terminal outcome of a run.
type RunResult struct {
	RunID        string       `json:"run_id"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Text         string       `json:"text"`
	Thinking     string       `json:"thinking,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
	Usage        Usage        `json:"usage"`
}

// --- Tool definitions ---

// ToolContext carries the per-run collaborators a tool may use. Tools get
// a value, never back-pointers into the supervisor, which keeps the
// dependency graph acyclic.
type ToolContext struct {
	// Workspace is the per-attempt workspace (journaled or previewed).
	Workspace Workspace
	// Memory is the run's namespaced view of the shared memory pool.
	Memory *MemoryScope
	// Retriever is nil unless the run was given one.
	Retriever Retriever
	// Emit publishes an event on the run's bus. Never nil.
	Emit func(Event)
	// Preview reports whether workspace effects are buffered in an overlay.
	Preview bool
	// Metadata is caller-supplied run metadata.
	Metadata map[string]string
}

// ToolFunc executes a tool. The returned value is JSON-serialized into the
// ToolResult. Errors (and panics) are contained by the executor.
type ToolFunc func(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error)

// ToolDefinition declares a tool the model may call.
// Name must match ^[A-Za-z0-9_-]{1,64}$ at the provider boundary; a
// NamePolicy validates or sanitizes it.
type ToolDefinition struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"` // JSON Schema
	Capabilities []string        `json:"capabilities,omitempty"`
	Execute      ToolFunc        `json:"-"`
}

// HasCapability reports whether the definition carries the given tag.
func (d *ToolDefinition) HasCapability(cap string) bool {
	for _, c := range d.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// --- Retrieval ---

// RetrievedChunk is one hit returned by a Retriever.
type RetrievedChunk struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Score    float64         `json:"score,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Retriever abstracts a context-retrieval backend (vector index, search
// service). Embedding and indexing are out of scope for the core.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error)
}

// --- File effects ---

// FileChangeKind classifies a workspace mutation.
type FileChangeKind string

const (
	ChangeCreate    FileChangeKind = "create"
	ChangeUpdate    FileChangeKind = "update"
	ChangeDelete    FileChangeKind = "delete"
	ChangeRename    FileChangeKind = "rename"
	ChangePatchHunk FileChangeKind = "patch_hunk"
)

// FileChange describes one workspace mutation performed by a tool.
// Preview is set when the effect is buffered in an overlay rather than
// applied to the base workspace.
type FileChange struct {
	Kind      FileChangeKind `json:"kind"`
	Path      string         `json:"path,omitempty"`
	FromPath  string         `json:"from_path,omitempty"`
	ToPath    string         `json:"to_path,omitempty"`
	Preview   bool           `json:"preview,omitempty"`
	HunkIndex int            `json:"hunk_index,omitempty"`
	HunkCount int            `json:"hunk_count,omitempty"`
}
