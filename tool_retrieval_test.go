package tiller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubRetriever struct {
	gotQuery string
	gotTopK  int
	chunks   []RetrievedChunk
	err      error
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, topK int) ([]RetrievedChunk, error) {
	r.gotQuery = query
	r.gotTopK = topK
	return r.chunks, r.err
}

func TestRetrieveContext(t *testing.T) {
	ret := &stubRetriever{chunks: []RetrievedChunk{{ID: "c1", Text: "hit", Score: 0.9}}}
	var events []Event
	tc := &ToolContext{Retriever: ret, Emit: func(ev Event) { events = append(events, ev) }}
	tool := toolByName(t, RetrievalTools(), "retrieve_context")

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"find it","topK":3}`), tc)
	if err != nil {
		t.Fatal(err)
	}
	if ret.gotQuery != "find it" || ret.gotTopK != 3 {
		t.Errorf("retriever got %q %d", ret.gotQuery, ret.gotTopK)
	}
	chunks := out.(map[string]any)["chunks"].([]RetrievedChunk)
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Errorf("chunks wrong: %+v", chunks)
	}
	if len(events) != 2 || events[0].Type != EventRetrievalQuery || events[1].Type != EventRetrievalResults {
		t.Errorf("expected query then results events, got %v", eventTypes(events))
	}
}

func TestRetrieveContextDefaultTopK(t *testing.T) {
	ret := &stubRetriever{}
	tc := &ToolContext{Retriever: ret, Emit: func(Event) {}}
	tool := toolByName(t, RetrievalTools(), "retrieve_context")

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`), tc); err != nil {
		t.Fatal(err)
	}
	if ret.gotTopK != defaultRetrievalTopK {
		t.Errorf("default topK should be %d, got %d", defaultRetrievalTopK, ret.gotTopK)
	}
}

func TestRetrieveContextErrors(t *testing.T) {
	tool := toolByName(t, RetrievalTools(), "retrieve_context")

	// No backend configured.
	tc := &ToolContext{Emit: func(Event) {}}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`), tc); err == nil {
		t.Error("missing retriever should fail")
	}

	// Backend failure propagates as a tool error.
	ret := &stubRetriever{err: errors.New("index offline")}
	tc = &ToolContext{Retriever: ret, Emit: func(Event) {}}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`), tc); err == nil {
		t.Error("backend failure should fail the tool")
	}
}
