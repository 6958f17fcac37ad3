package pii

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyRecognizer_BuildsOnce(t *testing.T) {
	var builds atomic.Int32
	lazy := NewLazyRecognizer(func() (EntityRecognizer, error) {
		builds.Add(1)
		return recognizerFunc(func(_ context.Context, text string) ([]Entity, error) {
			return []Entity{{Text: text, Label: LabelPerson}}, nil
		}), nil
	})
	assert.Zero(t, builds.Load(), "nothing is built before first use")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ents, err := lazy.Recognize(context.Background(), "Ann Lee")
			assert.NoError(t, err)
			assert.Len(t, ents, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), builds.Load())
}

func TestLazyRecognizer_FailureIsSticky(t *testing.T) {
	builds := 0
	lazy := NewLazyRecognizer(func() (EntityRecognizer, error) {
		builds++
		return nil, errors.New("model missing")
	})
	for i := 0; i < 3; i++ {
		_, err := lazy.Recognize(context.Background(), "x")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRecognizerUnavailable)
	}
	assert.Equal(t, 1, builds)
}

func TestLazyRecognizer_BadFactories(t *testing.T) {
	tests := []struct {
		name    string
		factory RecognizerFactory
	}{
		{"nil factory", nil},
		{"nil result", func() (EntityRecognizer, error) { return nil, nil }},
		{"panic", func() (EntityRecognizer, error) { panic("bad weights") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLazyRecognizer(tt.factory).Load()
			assert.ErrorIs(t, err, ErrRecognizerUnavailable)
		})
	}
}
