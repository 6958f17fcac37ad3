package ingest

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/clinicalintel/intake/internal/ingest")

var conversationsTotal metric.Int64Counter

func init() {
	var err error
	conversationsTotal, err = meter.Int64Counter("ingest.conversations.total",
		metric.WithDescription("Conversations processed, by identification outcome"))
	if err != nil {
		conversationsTotal, _ = meter.Int64Counter("ingest.conversations.total.fallback")
	}
}

func metricAttrs(kv ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(kv...)
}
