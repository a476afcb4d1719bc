// Package tiller is a provider-agnostic supervisor for streaming,
// tool-using LLM runs.
//
// Given a prompt, a set of tools, a workspace, and a pool of candidate
// providers, a Supervisor drives a multi-step interaction to completion:
// it enforces tool-use policies, produces a single ordered event stream,
// supports pause/resume/stop/cancel and tool-call approval, and fails
// over across providers with transactional workspace rollback.
//
// The core pieces:
//
//   - Supervisor: owns a run; plans candidates, executes attempts.
//   - RunController: cancellation, pause gates, approval rendezvous.
//   - EventBus: ordered multi-consumer broadcast of run events.
//   - ToolExecutor: policy decision, approval gating, dispatch.
//   - ModelRouter + CircuitBreaker + ModelCatalog: candidate ordering.
//   - Engine: the streaming + tool-loop contract a backend adapter
//     implements (see engine/openaicompat for a reference adapter).
//   - JournalWorkspace / PreviewWorkspace: transactional file effects.
//   - MemoryPool: bounded TTL caches shared across runs.
//
// Minimal use:
//
//	sup, err := tiller.NewSupervisor(tiller.SupervisorConfig{
//	    Engines: reg,
//	    Catalog: catalog,
//	})
//	if err != nil {
//	    return err
//	}
//	ws, err := localfs.New("/work/project")
//	if err != nil {
//	    return err
//	}
//	run, err := sup.Run(ctx, tiller.RunOptions{
//	    Prompt:    "rename util.go to helpers.go",
//	    Workspace: ws,
//	    Mode:      tiller.ModeLive,
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range run.Events() {
//	    // consume
//	}
//	result, err := run.Await(ctx)
package tiller
