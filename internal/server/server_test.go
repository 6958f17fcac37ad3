package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/pii"
)

func testServer(t *testing.T, opts ...Option) (http.Handler, *patient.Store, []string) {
	t.Helper()
	store, err := patient.NewStore(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ids, err := patient.Seed(context.Background(), store)
	require.NoError(t, err)

	lib := pii.MustDefaultLibrary()
	engine := pii.NewEngine(pii.NewKeywordGate(lib), pii.NewRedactor(lib))
	svc := ingest.NewService(engine, store, nil)
	return NewServer(svc, store, opts...).Routes(), store, ids
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := testServer(t)
	rec, out := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "ok", out["patient_store"])
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	h, store, _ := testServer(t)
	require.NoError(t, store.Close())
	rec, out := do(t, h, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", out["status"])
}

func TestRedact(t *testing.T) {
	h, _, _ := testServer(t)

	tests := []struct {
		name       string
		body       string
		wantText   string
		wantCats   []interface{}
		wantReason string
	}{
		{
			name:       "gate decides",
			body:       `{"text":"My name is John Smith, born 03/15/1985."}`,
			wantText:   "My name is [NAME], born [DATE].",
			wantCats:   []interface{}{"DATE", "NAME"},
			wantReason: pii.ReasonKeyword,
		},
		{
			name:       "caller disallows names",
			body:       `{"text":"My name is John Smith, born 03/15/1985.","allow":[]}`,
			wantText:   "My name is John Smith, born [DATE].",
			wantCats:   []interface{}{"DATE"},
			wantReason: pii.ReasonCaller,
		},
		{
			name:       "caller allows names without a trigger",
			body:       `{"text":"Ann Lee, please sit.","allow":["name"]}`,
			wantText:   "[NAME], please sit.",
			wantCats:   []interface{}{"NAME"},
			wantReason: pii.ReasonCaller,
		},
		{
			name:       "comparisons and spacing kept",
			body:       `{"text":"ratio K<Na,  Na>K\n"}`,
			wantText:   "ratio K<Na,  Na>K\n",
			wantCats:   []interface{}{},
			wantReason: pii.ReasonNone,
		},
		{
			name:       "nothing to redact",
			body:       `{"text":"I have a headache."}`,
			wantText:   "I have a headache.",
			wantCats:   []interface{}{},
			wantReason: pii.ReasonNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, http.MethodPost, "/v1/redact", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantText, out["redacted_text"])
			assert.Equal(t, tt.wantCats, out["categories_found"])
			assert.Equal(t, tt.wantReason, out["gate_reason"])
		})
	}
}

func TestRedact_BadRequests(t *testing.T) {
	h, _, _ := testServer(t)

	rec, out := do(t, h, http.MethodPost, "/v1/redact", `{"text":"x","allow":["PHONE"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", out["error"])

	rec, _ = do(t, h, http.MethodPost, "/v1/redact", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest(t *testing.T) {
	h, store, ids := testServer(t)

	rec, out := do(t, h, http.MethodPost, "/v1/ingest",
		`{"text":"My name is Mary Johnson and I was born on July 22, 1990."}`,
		SessionHeader, "sess-http")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sess-http", out["session_id"])
	assert.Equal(t, "My name is [NAME] and I was born on [DATE].", out["redacted_text"])
	assert.Equal(t, true, out["patient_identified"])
	assert.Equal(t, ids[1], out["patient_id"])
	records, _ := out["medical_records"].([]interface{})
	assert.Len(t, records, 2)

	convs, err := store.ListConversations(context.Background(), ids[1], 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "sess-http", convs[0].SessionID)
	assert.NotContains(t, convs[0].Transcript, "Mary")
}

func TestIngest_BadRequests(t *testing.T) {
	h, _, _ := testServer(t)

	rec, _ := do(t, h, http.MethodPost, "/v1/ingest", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/ingest", `{"text":"hello","speaker":"Nurse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatientsAndRecords(t *testing.T) {
	h, _, _ := testServer(t)

	rec, out := do(t, h, http.MethodPost, "/v1/patients",
		`{"name":"Ann Lee","ssn":"111-22-3333","dob":"2001-02-03"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pid, _ := out["patient_id"].(string)
	require.True(t, patient.ValidID(pid))

	rec, _ = do(t, h, http.MethodPost, "/v1/patients", `{"name":"Ann Lee"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = do(t, h, http.MethodGet, "/v1/patients/"+pid+"/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), out["count"])

	body := `{"type":"Allergies","content":"Penicillin","metadata":{"source":"chart"}}`
	rec, out = do(t, h, http.MethodPost, "/v1/patients/"+pid+"/records", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, patient.CategoryAllergy, out["category"])
	recordID := out["id"].(float64)

	rec, _ = do(t, h, http.MethodPost, "/v1/patients/"+pid+"/records", body)
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate returns the existing record")

	rec, out = do(t, h, http.MethodGet, "/v1/patients/"+pid+"/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["count"])

	path := "/v1/records/" + strconv.FormatInt(int64(recordID), 10)
	rec, _ = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, h, http.MethodDelete, "/v1/records/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordCreate_ScrubsIdentifiers(t *testing.T) {
	h, store, ids := testServer(t)

	body := `{"type":"Insurance","content":"Member SSN 123-45-6789, Ann Lee, verified 2024-01-10"}`
	rec, out := do(t, h, http.MethodPost, "/v1/patients/"+ids[0]+"/records", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Member SSN [SSN], Ann Lee, verified 2024-01-10", out["content"])
	assert.NotContains(t, rec.Body.String(), "123-45-6789")

	recs, err := store.ListRecords(context.Background(), ids[0])
	require.NoError(t, err)
	for _, r := range recs {
		assert.NotContains(t, r.Content, "123-45-6789")
	}

	// Resubmitting the same raw content hits the stored scrubbed record.
	rec, _ = do(t, h, http.MethodPost, "/v1/patients/"+ids[0]+"/records", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPatientPathValidation(t *testing.T) {
	h, _, _ := testServer(t)

	rec, _ := do(t, h, http.MethodGet, "/v1/patients/not-an-id/records", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := do(t, h, http.MethodGet, "/v1/patients/P00000000/records", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", out["error"])
}

func TestConversationsList(t *testing.T) {
	h, _, ids := testServer(t)

	for i := 0; i < 3; i++ {
		rec, _ := do(t, h, http.MethodPost, "/v1/ingest",
			`{"text":"My name is John Smith, born 03/15/1985."}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, out := do(t, h, http.MethodGet, "/v1/patients/"+ids[0]+"/conversations?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	convs, _ := out["conversations"].([]interface{})
	assert.Len(t, convs, 2)

	rec, _ = do(t, h, http.MethodGet, "/v1/patients/"+ids[0]+"/conversations?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	h, _, _ := testServer(t, WithAPIKeys([]string{"secret"}))

	rec, out := do(t, h, http.MethodPost, "/v1/redact", `{"text":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", out["error"])

	rec, _ = do(t, h, http.MethodPost, "/v1/redact", `{"text":"x"}`, "X-Intake-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/redact", `{"text":"x"}`, "X-Intake-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/v1/redact", `{"text":"x"}`, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health is unauthenticated")
}

func TestRateLimitMiddleware(t *testing.T) {
	h, _, _ := testServer(t, WithRateLimiter(NewRateLimiter(0, 2)))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec, _ := do(t, h, http.MethodPost, "/v1/redact", `{"text":"x"}`)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestCORSMiddleware(t *testing.T) {
	h, _, _ := testServer(t, WithCORSOrigins([]string{"https://clinic.example"}))

	rec, _ := do(t, h, http.MethodOptions, "/v1/redact", "", "Origin", "https://clinic.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://clinic.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = do(t, h, http.MethodGet, "/health", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsHandler(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	h, _, _ := testServer(t, WithMetricsHandler(metrics))
	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())

	h, _, _ = testServer(t)
	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
