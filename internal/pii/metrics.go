package pii

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/clinicalintel/intake/internal/pii")

var (
	redactionsTotal metric.Int64Counter
	gateDecisions   metric.Int64Counter
	nerFailures     metric.Int64Counter
)

func init() {
	var err error
	redactionsTotal, err = meter.Int64Counter("pii.redactions.total",
		metric.WithDescription("Spans substituted with a redaction token, by category"))
	if err != nil {
		redactionsTotal, _ = meter.Int64Counter("pii.redactions.total.fallback")
	}

	gateDecisions, err = meter.Int64Counter("pii.gate.decisions.total",
		metric.WithDescription("Semantic gate decisions, by reason"))
	if err != nil {
		gateDecisions, _ = meter.Int64Counter("pii.gate.decisions.total.fallback")
	}

	nerFailures, err = meter.Int64Counter("pii.ner.failures.total",
		metric.WithDescription("Entity recognizer calls that failed and fell back to keywords"))
	if err != nil {
		nerFailures, _ = meter.Int64Counter("pii.ner.failures.total.fallback")
	}
}

func metricAttrs(kv ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(kv...)
}
