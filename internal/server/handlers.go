package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/otel"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/pii"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["patient_store"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["patient_store"] = "ok"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.service.Process(r.Context(), req)
	switch {
	case errors.Is(err, ingest.ErrEmptyText), errors.Is(err, ingest.ErrInvalidSpeaker):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		log.Error().Err(err).Func(otel.LogTraceFields(r.Context())).Msg("ingest_error")
		writeError(w, http.StatusInternalServerError, "internal", "ingest failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type redactRequest struct {
	Text string `json:"text"`
	// Allow is the caller's allowed-category list. Omitted means the
	// semantic gate decides.
	Allow *[]string `json:"allow,omitempty"`
}

type redactResponse struct {
	RedactedText    string          `json:"redacted_text"`
	CategoriesFound pii.CategorySet `json:"categories_found"`
	GateReason      string          `json:"gate_reason"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var allowed pii.CategorySet
	if req.Allow != nil {
		allowed = pii.NewCategorySet()
		for _, name := range *req.Allow {
			c, ok := pii.ParseCategory(name)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_request", "unknown category "+strconv.Quote(name))
				return
			}
			allowed.Add(c)
		}
	}
	d, out := s.service.Redact(r.Context(), req.Text, allowed)
	writeJSON(w, http.StatusOK, redactResponse{
		RedactedText:    out.Text,
		CategoriesFound: out.Found,
		GateReason:      d.Reason,
	})
}

type patientRequest struct {
	Name string `json:"name"`
	SSN  string `json:"ssn"`
	DOB  string `json:"dob"`
}

func (s *Server) handlePatientCreate(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := patient.Identity{Name: req.Name, SSN: req.SSN, DOB: req.DOB}.Normalized()
	if id.Name == "" || id.SSN == "" || id.DOB == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name, ssn and dob are required")
		return
	}
	patientID, err := s.store.AddPatient(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Func(otel.LogTraceFields(r.Context())).Msg("patient_create_error")
		writeError(w, http.StatusInternalServerError, "internal", "storing patient failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"patient_id": patientID})
}

// patientFromPath validates {id} and checks that the patient exists. It
// writes the error response itself and returns "" on failure.
func (s *Server) patientFromPath(w http.ResponseWriter, r *http.Request) string {
	id := chi.URLParam(r, "id")
	if !patient.ValidID(id) {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed patient id")
		return ""
	}
	ok, err := s.store.Exists(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return ""
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "patient not found")
		return ""
	}
	return id
}

func (s *Server) handleRecordsList(w http.ResponseWriter, r *http.Request) {
	id := s.patientFromPath(w, r)
	if id == "" {
		return
	}
	recs, err := s.store.ListRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if recs == nil {
		recs = []patient.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": id,
		"records":    recs,
		"count":      len(recs),
	})
}

type recordRequest struct {
	Type     string            `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleRecordCreate(w http.ResponseWriter, r *http.Request) {
	id := s.patientFromPath(w, r)
	if id == "" {
		return
	}
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "type and content are required")
		return
	}
	scrubbed := ingest.ScrubRecord(r.Context(), s.service.Engine().Redactor(), req.Content)
	rec, created, err := s.store.AddRecord(r.Context(), id, req.Type, scrubbed.Text, req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, rec)
}

func (s *Server) handleRecordDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "record id must be a positive integer")
		return
	}
	err = s.store.DeleteRecord(r.Context(), id)
	if errors.Is(err, patient.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *Server) handleConversationsList(w http.ResponseWriter, r *http.Request) {
	id := s.patientFromPath(w, r)
	if id == "" {
		return
	}
	limit := defaultConversationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxConversationLimit)
	}
	convs, err := s.store.ListConversations(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if convs == nil {
		convs = []patient.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id":    id,
		"conversations": convs,
	})
}
