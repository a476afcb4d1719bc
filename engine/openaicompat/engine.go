package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tillerhq/tiller"
)

// Engine drives the supervisor's multi-step tool loop against any
// OpenAI-compatible chat completions API.
type Engine struct {
	name        string
	apiKey      string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
	requestOpts []Option
	anonymous   bool
	schemas     *schemaCache
	validate    bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithName overrides the provider id (default "openai"). Use it to register
// several compatible backends side by side ("groq", "openrouter", ...).
func WithName(name string) EngineOption {
	return func(e *Engine) { e.name = name }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) EngineOption {
	return func(e *Engine) { e.client = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithRequestOptions appends request-level defaults applied to every body.
func WithRequestOptions(opts ...Option) EngineOption {
	return func(e *Engine) { e.requestOpts = append(e.requestOpts, opts...) }
}

// WithAnonymous marks the backend as usable without an API key (Ollama,
// vLLM, LM Studio).
func WithAnonymous() EngineOption {
	return func(e *Engine) { e.anonymous = true }
}

// WithoutArgValidation disables JSON Schema validation of model-produced
// tool arguments before dispatch.
func WithoutArgValidation() EngineOption {
	return func(e *Engine) { e.validate = false }
}

// New creates an engine for an OpenAI-compatible API.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"); the /chat/completions path is appended.
func New(apiKey, baseURL string, opts ...EngineOption) *Engine {
	e := &Engine{
		name:     "openai",
		apiKey:   apiKey,
		baseURL:  baseURL,
		client:   &http.Client{},
		logger:   slog.New(slog.DiscardHandler),
		schemas:  newSchemaCache(),
		validate: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the provider id this engine serves.
func (e *Engine) Provider() string { return e.name }

// Available reports whether the backend is usable: an API key is present or
// the backend was marked anonymous.
func (e *Engine) Available() bool {
	return e.baseURL != "" && (e.apiKey != "" || e.anonymous)
}

// Start launches one attempt. The loop runs on its own goroutine and
// settles run.Finish exactly once.
func (e *Engine) Start(ctx context.Context, req tiller.EngineRequest, deps tiller.EngineDeps) (*tiller.EngineRun, error) {
	if !e.Available() {
		return nil, &tiller.ErrProviderUnavailable{Provider: e.name, Reason: "missing API key"}
	}
	if deps.Bus == nil || deps.Controller == nil || deps.Executor == nil {
		return nil, &tiller.ErrAgent{Message: "engine requires bus, controller, and executor"}
	}

	run := tiller.NewEngineRun(deps.Bus)
	go e.loop(ctx, req, deps, run)
	return run, nil
}

// streamTurn sends one streaming chat completions request and accumulates
// the model's turn, emitting deltas on the bus as they arrive.
func (e *Engine) streamTurn(ctx context.Context, req tiller.EngineRequest, messages []tiller.ChatMessage, deps tiller.EngineDeps) (Turn, error) {
	opts := make([]Option, 0, len(e.requestOpts)+2)
	opts = append(opts, e.requestOpts...)
	if req.Temperature != nil {
		opts = append(opts, WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(req.MaxTokens))
	}

	body := BuildBody(req.System, messages, deps.Executor.Definitions(), req.Model, opts...)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := e.send(ctx, body)
	if err != nil {
		return Turn{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Turn{}, &tiller.ErrEngine{
			Provider: e.name,
			Model:    req.Model,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw)),
		}
	}

	return StreamSSE(ctx, resp.Body, DeltaSink{
		OnText:     func(s string) { deps.Bus.Emit(tiller.TextDeltaEvent(s)) },
		OnThinking: func(s string) { deps.Bus.Emit(tiller.ThinkingDeltaEvent(s)) },
	})
}

func (e *Engine) send(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &tiller.ErrEngine{Provider: e.name, Model: body.Model, Message: "marshal request", Cause: err}
	}
	url := e.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &tiller.ErrEngine{Provider: e.name, Model: body.Model, Message: "create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &tiller.ErrEngine{Provider: e.name, Model: body.Model, Message: "request failed", Cause: err}
	}
	return resp, nil
}

// Compile-time interface check.
var _ tiller.Engine = (*Engine)(nil)
