package tiller

import "context"

// DecisionKind classifies a policy outcome.
type DecisionKind string

const (
	// DecisionAllow lets the call proceed.
	DecisionAllow DecisionKind = "allow"
	// DecisionDeny rejects the call.
	DecisionDeny DecisionKind = "deny"
	// DecisionAsk defers to the caller via the approval rendezvous.
	DecisionAsk DecisionKind = "ask"
)

// PolicyDecision is the outcome of a policy check. Policy names the policy
// that produced a non-allow decision so denials are attributable.
type PolicyDecision struct {
	Kind   DecisionKind
	Reason string
	Policy string
}

// Allow is the zero-friction decision.
func Allow() PolicyDecision { return PolicyDecision{Kind: DecisionAllow} }

// Deny rejects with a reason.
func Deny(policy, reason string) PolicyDecision {
	return PolicyDecision{Kind: DecisionDeny, Reason: reason, Policy: policy}
}

// Ask defers to the caller with a reason.
func Ask(policy, reason string) PolicyDecision {
	return PolicyDecision{Kind: DecisionAsk, Reason: reason, Policy: policy}
}

// ToolPolicy decides whether a tool call may run. def is the resolved
// definition (nil for unknown tools, though the executor rejects those
// before consulting the policy).
type ToolPolicy interface {
	Name() string
	Decide(ctx context.Context, call ToolCall, def *ToolDefinition) PolicyDecision
}

// --- stock policies ---

// AllowAllPolicy allows every call. The default when no policy is given.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Name() string { return "allow-all" }

func (AllowAllPolicy) Decide(context.Context, ToolCall, *ToolDefinition) PolicyDecision {
	return Allow()
}

// DenyAllPolicy denies every call.
type DenyAllPolicy struct{}

func (DenyAllPolicy) Name() string { return "deny-all" }

func (p DenyAllPolicy) Decide(_ context.Context, call ToolCall, _ *ToolDefinition) PolicyDecision {
	return Deny(p.Name(), "all tool calls are denied")
}

// AllowToolsPolicy allows only the listed tool names.
type AllowToolsPolicy struct {
	Tools []string
}

func (AllowToolsPolicy) Name() string { return "tool-allow-list" }

func (p AllowToolsPolicy) Decide(_ context.Context, call ToolCall, _ *ToolDefinition) PolicyDecision {
	for _, t := range p.Tools {
		if t == call.Name {
			return Allow()
		}
	}
	return Deny(p.Name(), "tool not in allow list")
}

// DenyToolsPolicy denies the listed tool names and allows the rest.
type DenyToolsPolicy struct {
	Tools []string
}

func (DenyToolsPolicy) Name() string { return "tool-deny-list" }

func (p DenyToolsPolicy) Decide(_ context.Context, call ToolCall, _ *ToolDefinition) PolicyDecision {
	for _, t := range p.Tools {
		if t == call.Name {
			return Deny(p.Name(), "tool in deny list")
		}
	}
	return Allow()
}

// DenyCapabilitiesPolicy denies any tool carrying one of the listed
// capability tags (e.g. "fs:write").
type DenyCapabilitiesPolicy struct {
	Capabilities []string
}

func (DenyCapabilitiesPolicy) Name() string { return "capability-deny-list" }

func (p DenyCapabilitiesPolicy) Decide(_ context.Context, _ ToolCall, def *ToolDefinition) PolicyDecision {
	if def == nil {
		return Allow()
	}
	for _, c := range p.Capabilities {
		if def.HasCapability(c) {
			return Deny(p.Name(), "capability "+c+" is denied")
		}
	}
	return Allow()
}

// ApprovalCapabilitiesPolicy requires caller approval for any tool carrying
// one of the listed capability tags.
type ApprovalCapabilitiesPolicy struct {
	Capabilities []string
}

func (ApprovalCapabilitiesPolicy) Name() string { return "capability-requires-approval" }

func (p ApprovalCapabilitiesPolicy) Decide(_ context.Context, _ ToolCall, def *ToolDefinition) PolicyDecision {
	if def == nil {
		return Allow()
	}
	for _, c := range p.Capabilities {
		if def.HasCapability(c) {
			return Ask(p.Name(), "capability "+c+" requires approval")
		}
	}
	return Allow()
}

// CompositePolicy consults policies in order and short-circuits on the
// first non-allow decision, which keeps the rejecting policy's name in the
// decision.
type CompositePolicy struct {
	Policies []ToolPolicy
}

func (CompositePolicy) Name() string { return "composite" }

func (p CompositePolicy) Decide(ctx context.Context, call ToolCall, def *ToolDefinition) PolicyDecision {
	for _, inner := range p.Policies {
		d := inner.Decide(ctx, call, def)
		if d.Kind != DecisionAllow {
			if d.Policy == "" {
				d.Policy = inner.Name()
			}
			return d
		}
	}
	return Allow()
}

// compile-time checks
var (
	_ ToolPolicy = AllowAllPolicy{}
	_ ToolPolicy = DenyAllPolicy{}
	_ ToolPolicy = AllowToolsPolicy{}
	_ ToolPolicy = DenyToolsPolicy{}
	_ ToolPolicy = DenyCapabilitiesPolicy{}
	_ ToolPolicy = ApprovalCapabilitiesPolicy{}
	_ ToolPolicy = CompositePolicy{}
)
