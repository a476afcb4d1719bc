package tiller

import (
	"context"
	"encoding/json"
	"fmt"
)

// MemoryTools returns the built-in key-value memory tools. They operate on
// the namespace the run was configured with (shared across runs unless the
// run opted into isolation) and emit memory_read/memory_write events.
func MemoryTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:         "memory_get",
			Description:  "Read a value from the run's key-value memory. Returns found=false on a miss.",
			Capabilities: []string{CapMemoryRead},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"key":{"type":"string"}},` +
				`"required":["key"]}`),
			Execute: memoryGet,
		},
		{
			Name:         "memory_set",
			Description:  "Store a JSON value in the run's key-value memory.",
			Capabilities: []string{CapMemoryWrite},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"key":{"type":"string"},` +
				`"value":{"description":"Any JSON value"}},` +
				`"required":["key","value"]}`),
			Execute: memorySet,
		},
	}
}

func memoryGet(_ context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if tc.Memory == nil {
		return nil, fmt.Errorf("memory is not configured for this run")
	}
	value, found := tc.Memory.Get(params.Key)
	tc.Emit(MemoryReadEvent(params.Key, value))
	return map[string]any{"found": found, "value": value}, nil
}

func memorySet(_ context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if tc.Memory == nil {
		return nil, fmt.Errorf("memory is not configured for this run")
	}
	tc.Memory.Set(params.Key, params.Value)
	tc.Emit(MemoryWriteEvent(params.Key, params.Value))
	return map[string]any{"ok": true}, nil
}
