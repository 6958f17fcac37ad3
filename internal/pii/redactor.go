package pii

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	intakeotel "github.com/clinicalintel/intake/internal/otel"
)

var tracer = intakeotel.Tracer("github.com/clinicalintel/intake/internal/pii")

// Outcome is the result of one redaction call. Found holds only categories
// for which at least one substitution happened.
type Outcome struct {
	Text  string      `json:"redacted_text"`
	Found CategorySet `json:"categories_found"`
}

// Redactor sequences detection and substitution. It holds no per-call state
// and is safe for concurrent use.
type Redactor struct {
	lib *Library
}

// NewRedactor returns a Redactor over lib. A nil lib uses the embedded
// recognizers.
func NewRedactor(lib *Library) *Redactor {
	if lib == nil {
		lib = defaultLibrary()
	}
	return &Redactor{lib: lib}
}

// Library returns the recognizer set the redactor runs.
func (r *Redactor) Library() *Library { return r.lib }

// Redact substitutes PII in text. Structural categories (DATE, then SSN,
// then any custom ones) are always redacted, each pass running over the
// output of the previous one. NAME is redacted only when allowed contains
// it, over the text left after every structural pass.
func (r *Redactor) Redact(ctx context.Context, text string, allowed CategorySet) Outcome {
	return r.redact(ctx, text, nil, allowed)
}

// RedactExcept runs the structural passes of Redact, skipping the categories
// in keep. NAME is never redacted.
func (r *Redactor) RedactExcept(ctx context.Context, text string, keep CategorySet) Outcome {
	return r.redact(ctx, text, keep, nil)
}

func (r *Redactor) redact(ctx context.Context, text string, keep, allowed CategorySet) Outcome {
	ctx, span := tracer.Start(ctx, "pii.redact")
	defer span.End()

	out := Outcome{Text: text, Found: NewCategorySet()}
	if text == "" {
		return out
	}

	for _, c := range r.lib.Categories() {
		if keep.Has(c) {
			continue
		}
		plan := resolve(r.lib.Detect(c, out.Text))
		out.Text = r.substitute(ctx, out, c, plan)
	}

	if allowed.Has(CategoryName) {
		plan := r.lib.ResolveNames(out.Text)
		out.Text = r.substitute(ctx, out, CategoryName, plan)
	}

	span.SetAttributes(
		attribute.StringSlice("pii.categories_found", out.Found.Strings()),
		attribute.Int("pii.input_len", len(text)),
		attribute.Int("pii.output_len", len(out.Text)),
	)
	log.Debug().
		Strs("categories_found", out.Found.Strings()).
		Int("input_len", len(text)).
		Func(intakeotel.LogTraceFields(ctx)).
		Msg("redaction_completed")
	return out
}

func (r *Redactor) substitute(ctx context.Context, out Outcome, c Category, plan []Span) string {
	if len(plan) == 0 {
		return out.Text
	}
	out.Found.Add(c)
	redactionsTotal.Add(ctx, int64(len(plan)), metricAttrs(attribute.String("category", string(c))))
	return apply(out.Text, plan)
}

// Engine computes the gate decision once per text and hands it to the
// Redactor.
type Engine struct {
	gate     Gate
	redactor *Redactor
}

// NewEngine wires gate and redactor together.
func NewEngine(gate Gate, redactor *Redactor) *Engine {
	return &Engine{gate: gate, redactor: redactor}
}

// Redactor returns the underlying redactor.
func (e *Engine) Redactor() *Redactor { return e.redactor }

// Decide runs the gate only.
func (e *Engine) Decide(ctx context.Context, text string) Decision {
	if e.gate == nil {
		return Decision{Allowed: NewCategorySet(), Reason: ReasonNone}
	}
	return e.gate.Decide(ctx, text)
}

// Process decides and redacts text.
func (e *Engine) Process(ctx context.Context, text string) (Decision, Outcome) {
	d := e.Decide(ctx, text)
	return d, e.redactor.Redact(ctx, text, d.Allowed)
}
