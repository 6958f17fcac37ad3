package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestRecognizerRequestAttributes(t *testing.T) {
	tests := []struct {
		system, model string
	}{
		{"ollama", "llama3.1"},
		{"openai", "gpt-4o-mini"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.system+"/"+tt.model, func(t *testing.T) {
			m := attrMap(RecognizerRequestAttributes(tt.system, tt.model))
			require.Len(t, m, 3)
			assert.Equal(t, tt.system, m[GenAISystem].AsString())
			assert.Equal(t, tt.model, m[GenAIRequestModel].AsString())
			assert.Equal(t, "chat", m[GenAIOperationName].AsString())
		})
	}
}

func TestRecognizerResponseAttributes(t *testing.T) {
	m := attrMap(RecognizerResponseAttributes(120, 18, "stop"))
	assert.Equal(t, int64(120), m[GenAIUsageInputTokens].AsInt64())
	assert.Equal(t, int64(18), m[GenAIUsageOutputTokens].AsInt64())
	assert.Equal(t, "stop", m[GenAIResponseFinishReason].AsString())

	m = attrMap(RecognizerResponseAttributes(0, 0, ""))
	assert.Len(t, m, 2)
	_, ok := m[GenAIResponseFinishReason]
	assert.False(t, ok)
}

func TestRecognizerAttributes_OnSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "gen_ai.ner")
	span.SetAttributes(RecognizerRequestAttributes("ollama", "llama3.1")...)
	span.SetAttributes(RecognizerResponseAttributes(40, 6, "stop")...)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	m := attrMap(ended[0].Attributes())
	assert.Equal(t, "llama3.1", m[GenAIRequestModel].AsString())
	assert.Equal(t, int64(6), m[GenAIUsageOutputTokens].AsInt64())
}
