package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for run supervision spans and metrics.
var (
	AttrRunID       = attribute.Key("run.id")
	AttrRunStatus   = attribute.Key("run.status")
	AttrRunFinish   = attribute.Key("run.finish_reason")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMModel    = attribute.Key("llm.model")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolName   = attribute.Key("tool.name")
	AttrToolStatus = attribute.Key("tool.status")
)
