// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires slog, OpenTelemetry tracing and metrics for the
// kernel.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on kernel spans and metrics.
const (
	// Run attributes
	AttrRunID  = "semkernel.run.id"
	AttrStep   = "semkernel.run.step"
	AttrStream = "semkernel.run.stream"

	// Function attributes
	AttrSkill        = "semkernel.skill"
	AttrFunction     = "semkernel.function"
	AttrFunctionKind = "semkernel.function.kind"
	AttrSuccess      = "semkernel.function.success"
	AttrErrorCode    = "error.code"

	// Service attributes
	AttrServiceID         = "semkernel.service.id"
	AttrServiceCapability = "semkernel.service.capability"

	// Memory attributes
	AttrMemoryCollection = "semkernel.memory.collection"
	AttrMemoryRetrieved  = "semkernel.memory.retrieved_count"

	// Tool call attributes
	AttrToolName   = "semkernel.tool.name"
	AttrToolCallID = "semkernel.tool.call_id"
	AttrToolArgs   = "semkernel.tool.arguments"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
)

// FunctionAttributes returns the attributes of a pipeline step span.
func FunctionAttributes(runID, skill, function, kind string, step int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSkill, skill),
		attribute.String(AttrFunction, function),
		attribute.String(AttrFunctionKind, kind),
		attribute.Int(AttrStep, step),
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	return attrs
}

// ServiceAttributes returns attributes describing a resolved AI service.
func ServiceAttributes(capability, serviceID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrServiceCapability, capability),
	}
	if serviceID != "" {
		attrs = append(attrs, attribute.String(AttrServiceID, serviceID))
	}
	return attrs
}

// MemoryAttributes returns attributes for memory operations.
func MemoryAttributes(collection string, retrieved int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMemoryCollection, collection),
	}
	if retrieved > 0 {
		attrs = append(attrs, attribute.Int(AttrMemoryRetrieved, retrieved))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span. Arguments are
// truncated to maxLen bytes.
func ToolCallAttributes(name, callID, args string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, name),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrToolCallID, callID))
	}
	if args != "" {
		if len(args) > maxLen {
			args = args[:maxLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrToolArgs, args))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(model string, inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}
