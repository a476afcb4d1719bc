package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/tillerhq/tiller"
)

// Turn is one fully accumulated model turn: the streamed text, any separate
// reasoning, the tool calls the model requested, usage, and the backend's
// finish reason.
type Turn struct {
	Content      string
	Thinking     string
	ToolCalls    []tiller.ToolCall
	Usage        tiller.Usage
	FinishReason string
}

// DeltaSink receives incremental chunks as they arrive. Either callback may
// be nil.
type DeltaSink struct {
	OnText     func(string)
	OnThinking func(string)
}

// StreamSSE reads an OpenAI-style SSE stream from body, fires sink callbacks
// for each delta, and returns the accumulated turn.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, sink DeltaSink) (Turn, error) {
	scanner := bufio.NewScanner(body)
	// Large SSE payloads (long tool arguments) exceed the default buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var content strings.Builder
	var thinking strings.Builder
	var turn Turn

	// OpenAI streams tool calls incrementally: each chunk carries an index
	// and argument string fragments.
	type partialToolCall struct {
		ID   string
		Name string
		Args strings.Builder
	}
	var calls []partialToolCall

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Turn{}, err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.Usage != nil {
			turn.Usage.InputTokens = chunk.Usage.PromptTokens
			turn.Usage.OutputTokens = chunk.Usage.CompletionTokens
			turn.Usage.TotalTokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			// Usage-only chunk (some providers send this).
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			turn.FinishReason = choice.FinishReason
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}

		if t := delta.Thinking(); t != "" {
			thinking.WriteString(t)
			if sink.OnThinking != nil {
				sink.OnThinking(t)
			}
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if sink.OnText != nil {
				sink.OnText(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(calls) <= idx {
				calls = append(calls, partialToolCall{})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				calls[idx].Args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Turn{}, err
	}

	for _, tc := range calls {
		args := json.RawMessage(tc.Args.String())
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		turn.ToolCalls = append(turn.ToolCalls, tiller.ToolCall{
			ID:   tc.ID,
			Name: tc.Name,
			Args: args,
		})
	}
	turn.Content = content.String()
	turn.Thinking = thinking.String()
	return turn, nil
}
