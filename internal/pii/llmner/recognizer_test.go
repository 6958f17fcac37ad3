package llmner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicalintel/intake/internal/pii"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "llama3",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ollama defaults", Config{Provider: ProviderOllama, Model: "llama3"}, false},
		{"openai with key", Config{Provider: ProviderOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini"}, false},
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}, true},
		{"no model", Config{Provider: ProviderOllama}, true},
		{"unknown provider", Config{Provider: "spacy", Model: "en_core_web_sm"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, r.timeout)
		})
	}
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []pii.Entity
	}{
		{
			name:    "plain array",
			content: `[{"text":"John Smith","label":"PERSON"}]`,
			want:    []pii.Entity{{Text: "John Smith", Label: pii.LabelPerson}},
		},
		{
			name:    "fenced with prose",
			content: "Here you go:\n```json\n[{\"text\": \"March 3rd\", \"label\": \"date\"}]\n```",
			want:    []pii.Entity{{Text: "March 3rd", Label: pii.LabelDate}},
		},
		{
			name:    "hallucinated entity dropped",
			content: `[{"text":"Jane Doe","label":"PERSON"},{"text":"john smith","label":"PERSON"}]`,
			want:    []pii.Entity{{Text: "john smith", Label: pii.LabelPerson}},
		},
		{
			name:    "empty array",
			content: `[]`,
			want:    []pii.Entity{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, http.StatusOK, tt.content)
			r, err := New(Config{Provider: ProviderOllama, BaseURL: srv.URL, Model: "llama3"})
			require.NoError(t, err)

			got, err := r.Recognize(context.Background(), "My name is John Smith, seen March 3rd.")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecognize_Errors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := chatServer(t, http.StatusNotFound, "")
		r, err := New(Config{Provider: ProviderOllama, BaseURL: srv.URL, Model: "llama3"})
		require.NoError(t, err)
		_, err = r.Recognize(context.Background(), "hello")
		assert.Error(t, err)
	})

	t.Run("no array", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "I cannot help with that.")
		r, err := New(Config{Provider: ProviderOllama, BaseURL: srv.URL, Model: "llama3"})
		require.NoError(t, err)
		_, err = r.Recognize(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestFactoryFeedsSemanticGate(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `[{"text":"Ann Lee","label":"PERSON"}]`)
	lazy := pii.NewLazyRecognizer(Factory(Config{Provider: ProviderOllama, BaseURL: srv.URL, Model: "llama3"}))
	gate := pii.NewSemanticGate(lazy, pii.MustDefaultLibrary())

	d := gate.Decide(context.Background(), "Ann Lee arrived.")
	assert.Equal(t, pii.ReasonEntity, d.Reason)
	assert.True(t, d.Allowed.Has(pii.CategoryName))
}
