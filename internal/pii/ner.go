package pii

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrRecognizerUnavailable is returned when the entity recognizer could not
// be constructed.
var ErrRecognizerUnavailable = errors.New("entity recognizer unavailable")

// Entity labels used by recognizers.
const (
	LabelPerson = "PERSON"
	LabelDate   = "DATE"
)

// Entity is a named entity reported by a recognizer.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// EntityRecognizer labels named entities in text. Implementations must be
// read-only after construction and safe for concurrent use.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// RecognizerFactory builds the process-wide recognizer handle.
type RecognizerFactory func() (EntityRecognizer, error)

// LazyRecognizer defers construction of an expensive recognizer until its
// first use. Construction runs exactly once under a mutex; every caller,
// including ones racing on first use, observes the same completed handle.
// A failed construction is not retried.
type LazyRecognizer struct {
	factory RecognizerFactory

	mu    sync.Mutex
	done  bool
	inner EntityRecognizer
	err   error
}

// NewLazyRecognizer wraps factory. Nothing is built until Recognize or Load.
func NewLazyRecognizer(factory RecognizerFactory) *LazyRecognizer {
	return &LazyRecognizer{factory: factory}
}

// Load constructs the handle if that has not happened yet and returns it.
func (l *LazyRecognizer) Load() (EntityRecognizer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.done = true
		l.inner, l.err = l.build()
	}
	return l.inner, l.err
}

func (l *LazyRecognizer) build() (rec EntityRecognizer, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("%w: construction panicked: %v", ErrRecognizerUnavailable, r)
		}
	}()
	if l.factory == nil {
		return nil, fmt.Errorf("%w: no factory configured", ErrRecognizerUnavailable)
	}
	rec, err = l.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: factory returned nil", ErrRecognizerUnavailable)
	}
	return rec, nil
}

// Recognize implements EntityRecognizer.
func (l *LazyRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	rec, err := l.Load()
	if err != nil {
		return nil, err
	}
	return rec.Recognize(ctx, text)
}
