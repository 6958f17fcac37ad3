// Package ingest runs a transcribed conversation through redaction, patient
// identification and persistence.
//
// The pipeline is: fold whitespace, extract identity (in memory), gate once,
// redact, look up the patient by hashed identity, store the redacted text,
// and return the patient's records. Raw text is never written anywhere.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicalintel/intake/internal/diarize"
	intakeotel "github.com/clinicalintel/intake/internal/otel"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/pii"
	"github.com/clinicalintel/intake/internal/requestctx"
)

var tracer = intakeotel.Tracer("github.com/clinicalintel/intake/internal/ingest")

var (
	// ErrEmptyText is returned when a request carries no text after
	// normalization.
	ErrEmptyText = errors.New("text is empty")
	// ErrInvalidSpeaker is returned for a speaker other than Doctor or Patient.
	ErrInvalidSpeaker = errors.New("speaker must be Doctor or Patient")
)

// Notes explaining why a conversation was not linked to a patient.
const (
	NoteNoIdentity     = "no patient information found in transcript"
	NotePatientUnknown = "patient not found"
)

// PatientStore is the persistence the pipeline needs.
type PatientStore interface {
	FindPatient(ctx context.Context, id patient.Identity) (string, patient.Match, error)
	AddConversation(ctx context.Context, patientID, sessionID string, out pii.Outcome) (*patient.Conversation, error)
	ListRecords(ctx context.Context, patientID string) ([]patient.Record, error)
}

// Request is one ingest call. Either Text or Segments must be set.
type Request struct {
	Text      string            `json:"text"`
	SessionID string            `json:"session_id,omitempty"`
	Speaker   string            `json:"speaker,omitempty"`
	Segments  []diarize.Segment `json:"segments,omitempty"`
}

// Result is returned to the caller. It holds no raw text.
type Result struct {
	SessionID         string           `json:"session_id"`
	RedactedText      string           `json:"redacted_text"`
	CategoriesFound   pii.CategorySet  `json:"categories_found"`
	GateReason        string           `json:"gate_reason"`
	PatientIdentified bool             `json:"patient_identified"`
	PatientID         string           `json:"patient_id,omitempty"`
	Match             patient.Match    `json:"match,omitempty"`
	ConversationID    string           `json:"conversation_id,omitempty"`
	Records           []patient.Record `json:"medical_records"`
	Note              string           `json:"note,omitempty"`
}

// Service wires the engine to the patient store.
type Service struct {
	engine    *pii.Engine
	store     PatientStore
	extractor *patient.Extractor
}

// NewService builds the pipeline. A nil extractor uses the engine's
// recognizer library for name trimming.
func NewService(engine *pii.Engine, store PatientStore, extractor *patient.Extractor) *Service {
	if extractor == nil {
		extractor = patient.NewExtractor(engine.Redactor().Library())
	}
	return &Service{engine: engine, store: store, extractor: extractor}
}

// Engine returns the redaction engine.
func (s *Service) Engine() *pii.Engine { return s.engine }

// Transcript builds the text of req: diarized segments when present,
// otherwise Text, labelled with Speaker when one is given.
func Transcript(req Request) (string, error) {
	if len(req.Segments) > 0 {
		return diarize.Assemble(diarize.AssignSpeakers(req.Segments)), nil
	}
	if req.Speaker == "" {
		return req.Text, nil
	}
	var role diarize.Role
	switch strings.ToLower(strings.TrimSpace(req.Speaker)) {
	case "doctor":
		role = diarize.RoleDoctor
	case "patient":
		role = diarize.RolePatient
	default:
		return "", ErrInvalidSpeaker
	}
	return diarize.Assemble([]diarize.Turn{{Speaker: role, Text: req.Text}}), nil
}

// Process runs the full pipeline for req.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest.process")
	defer span.End()

	raw, err := Transcript(req)
	if err != nil {
		return nil, err
	}
	text := Normalize(raw)
	if text == "" {
		return nil, ErrEmptyText
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = requestctx.SessionID(ctx)
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	identity := s.extractor.Extract(text)
	decision, outcome := s.engine.Process(ctx, text)

	res := &Result{
		SessionID:       sessionID,
		RedactedText:    outcome.Text,
		CategoriesFound: outcome.Found,
		GateReason:      decision.Reason,
		Records:         []patient.Record{},
	}

	if identity.Empty() {
		res.Note = NoteNoIdentity
	} else if err := s.identify(ctx, identity, res); err != nil {
		return nil, err
	}

	if res.PatientIdentified {
		conv, err := s.store.AddConversation(ctx, res.PatientID, sessionID, outcome)
		if err != nil {
			return nil, fmt.Errorf("storing conversation: %w", err)
		}
		res.ConversationID = conv.ID

		recs, err := s.store.ListRecords(ctx, res.PatientID)
		if err != nil {
			return nil, fmt.Errorf("retrieving records: %w", err)
		}
		if recs != nil {
			res.Records = recs
		}
	}

	conversationsTotal.Add(ctx, 1, metricAttrs(attribute.Bool("identified", res.PatientIdentified)))
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("patient.identified", res.PatientIdentified),
		attribute.StringSlice("pii.categories_found", outcome.Found.Strings()),
	)
	log.Info().
		Str("session_id", sessionID).
		Bool("patient_identified", res.PatientIdentified).
		Str("match", string(res.Match)).
		Strs("categories_found", outcome.Found.Strings()).
		Int("records", len(res.Records)).
		Func(intakeotel.LogTraceFields(ctx)).
		Msg("conversation_ingested")
	return res, nil
}

func (s *Service) identify(ctx context.Context, identity patient.Identity, res *Result) error {
	id, match, err := s.store.FindPatient(ctx, identity)
	if errors.Is(err, patient.ErrPatientNotFound) {
		res.Note = NotePatientUnknown
		return nil
	}
	if err != nil {
		return fmt.Errorf("identifying patient: %w", err)
	}
	res.PatientIdentified = true
	res.PatientID = id
	res.Match = match
	return nil
}

// Redact runs redaction only, over text exactly as given. A nil allowed set
// defers to the engine's gate; a non-nil set is used as the caller's decision.
func (s *Service) Redact(ctx context.Context, text string, allowed pii.CategorySet) (pii.Decision, pii.Outcome) {
	if allowed == nil {
		return s.engine.Process(ctx, text)
	}
	d := pii.Decision{Allowed: allowed, Reason: pii.ReasonCaller}
	return d, s.engine.Redactor().Redact(ctx, text, allowed)
}

// recordKept lists the categories left in medical record content. Record
// dates are the patient's clinical timeline.
var recordKept = pii.NewCategorySet(pii.CategoryDate)

// ScrubRecord removes identifiers other than dates from medical record
// content before it is stored. Names are kept: records are written by
// clinicians about a patient already identified by id.
func ScrubRecord(ctx context.Context, r *pii.Redactor, content string) pii.Outcome {
	return r.RedactExcept(ctx, content, recordKept)
}
