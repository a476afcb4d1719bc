package tiller

import "fmt"

// ErrProviderUnavailable reports a backend that is missing credentials or
// otherwise misconfigured. The failover loop skips the candidate.
type ErrProviderUnavailable struct {
	Provider string
	Reason   string
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %s", e.Provider, e.Reason)
}

// ErrToolDenied reports a tool call rejected by policy or by the user.
// The executor converts it into an error ToolResult so the engine loop
// keeps going.
type ErrToolDenied struct {
	Tool   string
	Reason string
	Policy string
}

func (e *ErrToolDenied) Error() string {
	if e.Policy != "" {
		return fmt.Sprintf("tool %s denied by %s: %s", e.Tool, e.Policy, e.Reason)
	}
	return fmt.Sprintf("tool %s denied: %s", e.Tool, e.Reason)
}

// ErrToolCancelled reports that the run was cancelled before or during a
// tool execution.
type ErrToolCancelled struct {
	Tool string
}

func (e *ErrToolCancelled) Error() string {
	return fmt.Sprintf("tool %s cancelled", e.Tool)
}

// ErrAgent wraps configuration and terminal run errors ("all provider
// candidates failed") with an optional cause.
type ErrAgent struct {
	Message string
	Cause   error
}

func (e *ErrAgent) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ErrAgent) Unwrap() error { return e.Cause }

// ErrEngine reports a streaming or backend failure during an attempt.
// It terminates the attempt and triggers failover.
type ErrEngine struct {
	Provider string
	Model    string
	Message  string
	Cause    error
}

func (e *ErrEngine) Error() string {
	msg := fmt.Sprintf("engine %s:%s: %s", e.Provider, e.Model, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ErrEngine) Unwrap() error { return e.Cause }

// ErrRunCancelled is the terminal cause recorded when a run is cancelled.
type ErrRunCancelled struct {
	Reason string
}

func (e *ErrRunCancelled) Error() string {
	if e.Reason == "" {
		return "run cancelled"
	}
	return "run cancelled: " + e.Reason
}
