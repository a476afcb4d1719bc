package tiller

import (
	"context"
	"encoding/json"
	"fmt"
)

const defaultRetrievalTopK = 8

// RetrievalTools returns the built-in context retrieval tool. It is only
// useful when the run was configured with a Retriever; without one the tool
// returns an error result.
func RetrievalTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:         "retrieve_context",
			Description:  "Retrieve relevant context chunks for a query from the configured retrieval backend.",
			Capabilities: []string{CapRetrievalRead},
			InputSchema: json.RawMessage(`{"type":"object","properties":{` +
				`"query":{"type":"string"},` +
				`"topK":{"type":"integer","description":"Maximum chunks to return (default 8)"}},` +
				`"required":["query"]}`),
			Execute: retrieveContext,
		},
	}
}

func retrieveContext(ctx context.Context, args json.RawMessage, tc *ToolContext) (any, error) {
	var params struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	if tc.Retriever == nil {
		return nil, fmt.Errorf("no retrieval backend is configured for this run")
	}
	if params.TopK <= 0 {
		params.TopK = defaultRetrievalTopK
	}

	tc.Emit(RetrievalQueryEvent(params.Query, params.TopK))
	chunks, err := tc.Retriever.Retrieve(ctx, params.Query, params.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	tc.Emit(RetrievalResultsEvent(params.Query, chunks))
	return map[string]any{"chunks": chunks}, nil
}
