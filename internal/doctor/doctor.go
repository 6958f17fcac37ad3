// Package doctor provides preflight checks for an intake installation.
// Used by `intake doctor` and logged at `intake serve` startup.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clinicalintel/intake/internal/config"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/pii"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	SkipUpstream bool // Skip recognizer endpoint connectivity (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = []CheckResult{{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check INTAKE_* variables and intake.config.yaml",
		}}
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkPatternFile(cfg))
		report.Checks = append(report.Checks, checkRecognizer(ctx, cfg, opts))
		report.Checks = append(report.Checks, checkAPIKeys(cfg))
		report.Checks = append(report.Checks, checkRetention(cfg))
		report.Checks = append(report.Checks, checkPatientDB(ctx, cfg))
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}

	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkPatternFile(cfg *config.Config) CheckResult {
	lib, err := pii.NewLibrary(pii.WithPatternFile(cfg.PatternFile))
	if err != nil {
		return CheckResult{
			Name: "recognizers_valid", Category: "pii", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Fix the recognizer YAML at " + cfg.PatternFile,
		}
	}
	source := "embedded defaults"
	if cfg.PatternFile != "" {
		source = "embedded defaults + " + cfg.PatternFile
	}
	cats := make([]string, 0, len(lib.Categories()))
	for _, c := range lib.Categories() {
		cats = append(cats, string(c))
	}
	return CheckResult{
		Name: "recognizers_valid", Category: "pii", Status: StatusPass,
		Message: fmt.Sprintf("%s (%s, %d triggers)", source, strings.Join(cats, ", "), len(lib.Triggers())),
	}
}

func checkRecognizer(ctx context.Context, cfg *config.Config, opts Options) CheckResult {
	if !cfg.NEREnabled() {
		return CheckResult{
			Name: "ner_backend", Category: "pii", Status: StatusWarn,
			Message: "No entity recognizer; NAME gating uses trigger keywords only",
			Fix:     "Set INTAKE_NER_PROVIDER=ollama or openai",
		}
	}
	if opts.SkipUpstream {
		return CheckResult{
			Name: "ner_backend", Category: "pii", Status: StatusPass,
			Message: fmt.Sprintf("%s/%s (connectivity not checked)", cfg.NERProvider, cfg.NERModel),
		}
	}
	return checkModelsEndpoint(ctx, cfg)
}

func checkModelsEndpoint(ctx context.Context, cfg *config.Config) CheckResult {
	baseURL := cfg.NERBaseURL
	if baseURL == "" {
		switch cfg.NERProvider {
		case config.NEROllama:
			baseURL = "http://localhost:11434"
		default:
			baseURL = "https://api.openai.com"
		}
	}
	modelsURL := strings.TrimRight(baseURL, "/") + "/v1/models"

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL, nil)
	if err != nil {
		return CheckResult{
			Name: "ner_backend", Category: "pii", Status: StatusFail,
			Message: fmt.Sprintf("invalid models URL %s: %v", modelsURL, err),
			Fix:     "Check INTAKE_NER_BASE_URL",
		}
	}
	if cfg.NERAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.NERAPIKey)
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL from operator config
	if err != nil {
		return CheckResult{
			Name: "ner_backend", Category: "pii", Status: StatusWarn,
			Message: fmt.Sprintf("GET %s failed: %v", modelsURL, err),
			Fix:     "Redaction still works; NAME gating falls back to trigger keywords",
		}
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return CheckResult{
			Name: "ner_backend", Category: "pii", Status: StatusWarn,
			Message: fmt.Sprintf("GET /v1/models: %d", resp.StatusCode),
			Fix:     "Verify ner_base_url points to an OpenAI-compatible API and the key is valid",
		}
	}
	return CheckResult{
		Name: "ner_backend", Category: "pii", Status: StatusPass,
		Message: fmt.Sprintf("%s/%s, %dms", cfg.NERProvider, cfg.NERModel, time.Since(start).Milliseconds()),
	}
}

func checkAPIKeys(cfg *config.Config) CheckResult {
	if len(cfg.APIKeys) == 0 {
		return CheckResult{
			Name: "api_keys", Category: "server", Status: StatusWarn,
			Message: "No API keys; /v1 endpoints are unauthenticated",
			Fix:     "Set INTAKE_API_KEYS for production",
		}
	}
	return CheckResult{
		Name: "api_keys", Category: "server", Status: StatusPass,
		Message: fmt.Sprintf("%d key(s) configured", len(cfg.APIKeys)),
	}
}

func checkRetention(cfg *config.Config) CheckResult {
	if cfg.RetentionDays == 0 {
		return CheckResult{
			Name: "retention", Category: "config", Status: StatusWarn,
			Message: "retention_days is 0; conversations are kept forever",
		}
	}
	return CheckResult{
		Name: "retention", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%d days, schedule %q", cfg.RetentionDays, cfg.RetentionSchedule),
	}
}

func checkPatientDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := patient.NewStore(cfg.DBPath())
	if err != nil {
		return CheckResult{
			Name: "patient_db", Category: "system", Status: StatusFail,
			Message: err.Error(),
		}
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	count, err := store.CountPatients(ctx)
	if err != nil {
		return CheckResult{
			Name: "patient_db", Category: "system", Status: StatusFail,
			Message: err.Error(),
		}
	}
	sizeStr := "unknown"
	if fi, _ := os.Stat(cfg.DBPath()); fi != nil {
		sizeStr = fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024))
	}
	return CheckResult{
		Name: "patient_db", Category: "system", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d patients, %s)", cfg.DBPath(), count, sizeStr),
	}
}
