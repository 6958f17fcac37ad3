package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func TestMiddlewareWithStatus_RouteAndRequestID(t *testing.T) {
	sr := recordSpans(t)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(MiddlewareWithStatus())
	r.Get("/v1/patients/{id}/records", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patients/P1/records", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	m := attrMap(ended[0].Attributes())
	assert.Equal(t, "/v1/patients/{id}/records", m["http.route"].AsString())
	assert.Equal(t, int64(http.StatusNoContent), m["http.response.status_code"].AsInt64())
	assert.NotEmpty(t, m["http.request_id"].AsString())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}

func TestMiddlewareWithStatus_ServerErrorMarksSpan(t *testing.T) {
	sr := recordSpans(t)

	h := MiddlewareWithStatus()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	m := attrMap(ended[0].Attributes())
	assert.Equal(t, "/v1/ingest", m["http.route"].AsString())
	assert.Equal(t, int64(http.StatusInternalServerError), m["http.response.status_code"].AsInt64())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}
