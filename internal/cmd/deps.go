package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clinicalintel/intake/internal/config"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/pii"
	"github.com/clinicalintel/intake/internal/pii/llmner"
)

// Gate selections for --gate.
const (
	gateKeyword  = "keyword"
	gateSemantic = "semantic"
)

// buildEngine compiles the recognizer library and wires the gate. The
// semantic gate uses the configured entity recognizer, constructed lazily on
// first use; without one it behaves like the keyword gate.
func buildEngine(cfg *config.Config, gate string) (*pii.Engine, error) {
	lib, err := pii.NewLibrary(pii.WithPatternFile(cfg.PatternFile))
	if err != nil {
		return nil, err
	}

	var g pii.Gate
	switch gate {
	case gateKeyword:
		g = pii.NewKeywordGate(lib)
	case gateSemantic, "":
		var rec pii.EntityRecognizer
		if cfg.NEREnabled() {
			rec = pii.NewLazyRecognizer(llmner.Factory(llmner.Config{
				Provider: cfg.NERProvider,
				BaseURL:  cfg.NERBaseURL,
				APIKey:   cfg.NERAPIKey,
				Model:    cfg.NERModel,
			}))
		}
		g = pii.NewSemanticGate(rec, lib)
	default:
		return nil, fmt.Errorf("unknown gate %q (want keyword or semantic)", gate)
	}

	log.Debug().
		Str("gate", gate).
		Str("ner_provider", cfg.NERProvider).
		Str("pattern_file", cfg.PatternFile).
		Msg("redaction_engine_ready")
	return pii.NewEngine(g, pii.NewRedactor(lib)), nil
}

// openStore loads config, creates the data directory and opens the patient
// store.
func openStore() (*config.Config, *patient.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	store, err := patient.NewStore(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening patient store: %w", err)
	}
	return cfg, store, nil
}
