// Package llmner implements pii.EntityRecognizer on top of an
// OpenAI-compatible chat completion API. It works against OpenAI itself and
// against a local Ollama instance through its /v1 compatibility endpoint.
package llmner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	intakeotel "github.com/clinicalintel/intake/internal/otel"
	"github.com/clinicalintel/intake/internal/pii"
)

var tracer = intakeotel.Tracer("github.com/clinicalintel/intake/internal/pii/llmner")

// Providers understood by New.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultTimeout bounds a single recognition call.
const DefaultTimeout = 20 * time.Second

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

const systemPrompt = `You are a named-entity recognizer for clinical conversation transcripts.
Return ONLY a JSON array. Each element is an object {"text": "...", "label": "..."}
where label is PERSON for a person's name or DATE for a calendar date.
Copy "text" exactly as it appears in the input. Return [] when there is nothing to report.`

// Config selects the backend.
type Config struct {
	Provider string // "openai" or "ollama"
	BaseURL  string // scheme+host, without the /v1 suffix
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Recognizer asks a chat model to label entities.
type Recognizer struct {
	client  *openai.Client
	system  string
	model   string
	timeout time.Duration
}

// New builds a Recognizer. It performs no network calls.
func New(cfg Config) (*Recognizer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llmner: model is required")
	}
	var clientCfg openai.ClientConfig
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llmner: api key is required for provider %q", cfg.Provider)
		}
		clientCfg = openai.DefaultConfig(cfg.APIKey)
	case ProviderOllama:
		// Ollama ignores the key but the client requires a non-empty header value.
		key := cfg.APIKey
		if key == "" {
			key = "ollama"
		}
		clientCfg = openai.DefaultConfig(key)
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
	default:
		return nil, fmt.Errorf("llmner: unknown provider %q", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recognizer{
		client:  openai.NewClientWithConfig(clientCfg),
		system:  cfg.Provider,
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

// Factory returns a pii.RecognizerFactory for use with pii.NewLazyRecognizer.
func Factory(cfg Config) pii.RecognizerFactory {
	return func() (pii.EntityRecognizer, error) {
		return New(cfg)
	}
}

// Recognize implements pii.EntityRecognizer. Entities whose text does not
// occur in the input are dropped.
func (r *Recognizer) Recognize(ctx context.Context, text string) ([]pii.Entity, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.ner",
		trace.WithAttributes(intakeotel.RecognizerRequestAttributes(r.system, r.model)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ner chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	span.SetAttributes(intakeotel.RecognizerResponseAttributes(
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, string(resp.Choices[0].FinishReason))...)

	entities, err := parseEntities(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	lower := strings.ToLower(text)
	kept := entities[:0]
	for _, e := range entities {
		if e.Text == "" || !strings.Contains(lower, strings.ToLower(e.Text)) {
			continue
		}
		e.Label = strings.ToUpper(strings.TrimSpace(e.Label))
		kept = append(kept, e)
	}
	return kept, nil
}

// parseEntities extracts the JSON array from a model answer, tolerating
// surrounding prose and markdown code fences.
func parseEntities(content string) ([]pii.Entity, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("ner response has no JSON array")
	}
	var entities []pii.Entity
	if err := json.Unmarshal([]byte(content[start:end+1]), &entities); err != nil {
		return nil, fmt.Errorf("decoding ner response: %w", err)
	}
	return entities, nil
}
