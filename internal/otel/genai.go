package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys recorded on entity recognizer spans.
const (
	GenAISystem               = attribute.Key("gen_ai.system")
	GenAIOperationName        = attribute.Key("gen_ai.operation.name")
	GenAIRequestModel         = attribute.Key("gen_ai.request.model")
	GenAIUsageInputTokens     = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens    = attribute.Key("gen_ai.usage.output_tokens")
	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
)

// RecognizerRequestAttributes describes a chat call made to label entities.
func RecognizerRequestAttributes(system, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIOperationName.String("chat"),
		GenAIRequestModel.String(model),
	}
}

// RecognizerResponseAttributes records token usage and why the model stopped.
func RecognizerResponseAttributes(inputTokens, outputTokens int, finishReason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
	if finishReason != "" {
		attrs = append(attrs, GenAIResponseFinishReason.String(finishReason))
	}
	return attrs
}
