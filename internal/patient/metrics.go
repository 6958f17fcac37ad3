package patient

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/clinicalintel/intake/internal/patient")

var lookupsTotal metric.Int64Counter

func init() {
	var err error
	lookupsTotal, err = meter.Int64Counter("patient.lookups.total",
		metric.WithDescription("Patient identity lookups, by match level"))
	if err != nil {
		lookupsTotal, _ = meter.Int64Counter("patient.lookups.total.fallback")
	}
}

func metricAttrs(kv ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(kv...)
}
