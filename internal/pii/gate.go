package pii

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	intakeotel "github.com/clinicalintel/intake/internal/otel"
)

// Decision sources, reported in Decision.Reason.
const (
	ReasonEntity  = "entity"
	ReasonKeyword = "keyword"
	ReasonNone    = "none"
	ReasonCaller  = "caller" // allowed categories supplied by the caller
)

// Decision is the set of probabilistic categories a caller may attempt for
// one input text. It is computed once per text and passed to Redact.
type Decision struct {
	Allowed CategorySet `json:"allowed"`
	Reason  string      `json:"reason"`
}

// Gate decides whether semantic (NAME) redaction is worth attempting.
type Gate interface {
	Decide(ctx context.Context, text string) Decision
}

// KeywordGate allows NAME when a trigger word (role or honorific such as
// "doctor", "patient", "mr", "name") appears as a whole word, ignoring case.
type KeywordGate struct {
	lib *Library
}

// NewKeywordGate returns a gate over lib's trigger vocabulary.
func NewKeywordGate(lib *Library) *KeywordGate {
	return &KeywordGate{lib: lib}
}

// Decide implements Gate.
func (g *KeywordGate) Decide(ctx context.Context, text string) Decision {
	_, span := tracer.Start(ctx, "pii.gate.keyword")
	defer span.End()

	d := g.decide(text)
	span.SetAttributes(attribute.String("pii.gate.reason", d.Reason))
	return d
}

func (g *KeywordGate) decide(text string) Decision {
	if g.triggered(text) {
		return Decision{Allowed: NewCategorySet(CategoryName), Reason: ReasonKeyword}
	}
	return Decision{Allowed: NewCategorySet(), Reason: ReasonNone}
}

func (g *KeywordGate) triggered(text string) bool {
	for _, w := range alphaWord.FindAllString(text, -1) {
		if _, ok := g.lib.triggers[strings.ToLower(w)]; ok {
			return true
		}
	}
	return false
}

// SemanticGate asks an entity recognizer first and falls back to the keyword
// triggers when the recognizer fails, is unavailable, or reports no person.
// Recognizer failures never escape Decide.
type SemanticGate struct {
	recognizer EntityRecognizer
	keywords   *KeywordGate
}

// NewSemanticGate combines rec with lib's keyword fallback. A nil rec makes
// the gate equivalent to a KeywordGate.
func NewSemanticGate(rec EntityRecognizer, lib *Library) *SemanticGate {
	return &SemanticGate{recognizer: rec, keywords: NewKeywordGate(lib)}
}

// Decide implements Gate.
func (g *SemanticGate) Decide(ctx context.Context, text string) Decision {
	ctx, span := tracer.Start(ctx, "pii.gate.decide")
	defer span.End()

	var d Decision
	if g.hasPerson(ctx, text) {
		d = Decision{Allowed: NewCategorySet(CategoryName), Reason: ReasonEntity}
	} else {
		d = g.keywords.decide(text)
	}

	gateDecisions.Add(ctx, 1, metricAttrs(attribute.String("reason", d.Reason)))
	span.SetAttributes(
		attribute.String("pii.gate.reason", d.Reason),
		attribute.StringSlice("pii.gate.allowed", d.Allowed.Strings()),
	)
	return d
}

func (g *SemanticGate) hasPerson(ctx context.Context, text string) bool {
	if g.recognizer == nil || text == "" {
		return false
	}
	ctx, span := tracer.Start(ctx, "pii.ner.recognize")
	defer span.End()

	entities, err := g.recognize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognizer failed")
		nerFailures.Add(ctx, 1)
		log.Debug().Err(err).Func(intakeotel.LogTraceFields(ctx)).Msg("ner_unavailable")
		return false
	}
	span.SetAttributes(attribute.Int("pii.ner.entity_count", len(entities)))
	for _, e := range entities {
		if strings.EqualFold(e.Label, LabelPerson) {
			return true
		}
	}
	return false
}

// recognize converts recognizer panics into errors.
func (g *SemanticGate) recognize(ctx context.Context, text string) (entities []Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			entities, err = nil, fmt.Errorf("recognizer panicked: %v", r)
		}
	}()
	return g.recognizer.Recognize(ctx, text)
}
