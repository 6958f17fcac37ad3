package pii

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/clinicalintel/intake/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema. StopWords is an
// intake extension used by the NAME recognizer only.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	StopWords          []string          `yaml:"stop_words,omitempty" json:"stop_words,omitempty"`
	Sensitivity        int               `yaml:"sensitivity,omitempty" json:"sensitivity,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score,omitempty" json:"score,omitempty"`
}

// LanguageContext holds context words for a specific language. For the NAME
// recognizer the context words are the gate's trigger vocabulary.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

const recognizerSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["recognizers"],
  "properties": {
    "recognizers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "supported_entity"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "supported_entity": {"type": "string", "pattern": "^[A-Z][A-Z_]*$"},
          "enabled": {"type": "boolean"},
          "sensitivity": {"type": "integer", "minimum": 0, "maximum": 3},
          "patterns": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "regex"],
              "properties": {
                "name": {"type": "string"},
                "regex": {"type": "string", "minLength": 1},
                "score": {"type": "number", "minimum": 0, "maximum": 1}
              }
            }
          },
          "supported_languages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["language"],
              "properties": {
                "language": {"type": "string"},
                "context": {"type": "array", "items": {"type": "string"}}
              }
            }
          },
          "stop_words": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

// ValidateRecognizerFile checks recognizer YAML against the recognizer JSON
// schema. The YAML is converted to JSON first because gojsonschema operates
// on JSON documents.
func ValidateRecognizerFile(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("converting recognizer YAML to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(recognizerSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("recognizer schema validation: %w", err)
	}
	if !result.Valid() {
		var msg strings.Builder
		for _, verr := range result.Errors() {
			msg.WriteString("- ")
			msg.WriteString(verr.String())
			msg.WriteString("\n")
		}
		return fmt.Errorf("recognizer schema errors:\n%s", msg.String())
	}
	return nil
}

// ParseRecognizerFile validates and parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	if err := ValidateRecognizerFile(data); err != nil {
		return nil, err
	}
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the recognizers parsed from the embedded
// pii_clinical.yaml.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIClinicalYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers merges layers in order. A later recognizer with the same
// Name replaces the earlier one in place; new names are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if idx, ok := index[rc.Name]; ok {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// structural is the compiled pattern set of one unconditional category.
type structural struct {
	category Category
	patterns []*regexp.Regexp
}

// Library is the compiled, immutable recognizer set: the structural pattern
// grammars in redaction order, plus the NAME trigger and stop-word
// vocabularies. A Library is safe for concurrent use.
type Library struct {
	structural []structural
	triggers   map[string]struct{}
	stopWords  map[string]struct{}
	tokens     map[string]struct{}
}

// CompileLibrary builds a Library from recognizer configs. Disabled
// recognizers are skipped. DATE is always ordered before SSN, and both before
// any custom structural category, which keep their first-seen order.
func CompileLibrary(recognizers []RecognizerConfig) (*Library, error) {
	lib := &Library{
		triggers:  make(map[string]struct{}),
		stopWords: make(map[string]struct{}),
		tokens:    map[string]struct{}{string(CategoryName): {}},
	}
	byCategory := make(map[Category]int)
	order := []Category{CategoryDate, CategorySSN}
	for _, c := range order {
		byCategory[c] = len(lib.structural)
		lib.structural = append(lib.structural, structural{category: c})
		lib.tokens[string(c)] = struct{}{}
	}

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		cat := Category(rec.SupportedEntity)
		if cat == CategoryName {
			for _, lc := range rec.SupportedLanguages {
				for _, w := range lc.Context {
					lib.triggers[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
				}
			}
			for _, w := range rec.StopWords {
				lib.stopWords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
			}
			continue
		}

		idx, ok := byCategory[cat]
		if !ok {
			idx = len(lib.structural)
			byCategory[cat] = idx
			lib.structural = append(lib.structural, structural{category: cat})
			lib.tokens[string(cat)] = struct{}{}
		}
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			lib.structural[idx].patterns = append(lib.structural[idx].patterns, re)
		}
	}
	return lib, nil
}

// DefaultLibrary compiles the embedded recognizers.
func DefaultLibrary() (*Library, error) {
	recs, err := DefaultRecognizers()
	if err != nil {
		return nil, err
	}
	return CompileLibrary(recs)
}

// LibraryOption layers additional recognizers on top of the embedded defaults.
type LibraryOption func(*libraryConfig)

type libraryConfig struct {
	patternFile string
	extra       []RecognizerConfig
}

// WithPatternFile merges recognizers from a YAML file. A missing file is
// silently skipped.
func WithPatternFile(path string) LibraryOption {
	return func(c *libraryConfig) { c.patternFile = path }
}

// WithRecognizers merges the given recognizers last.
func WithRecognizers(recs []RecognizerConfig) LibraryOption {
	return func(c *libraryConfig) { c.extra = recs }
}

// NewLibrary compiles defaults, then the optional pattern file, then any
// extra recognizers, merging by recognizer name.
func NewLibrary(opts ...LibraryOption) (*Library, error) {
	var cfg libraryConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, err
	}

	var fileRecs []RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = rf.Recognizers
		}
	}

	lib, err := CompileLibrary(MergeRecognizers(defaults, fileRecs, cfg.extra))
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}
	return lib, nil
}

// MustDefaultLibrary is like DefaultLibrary but panics on error. The embedded
// recognizers are expected to always compile.
func MustDefaultLibrary() *Library {
	lib, err := DefaultLibrary()
	if err != nil {
		panic(fmt.Sprintf("pii.DefaultLibrary: %v", err))
	}
	return lib
}

// Categories returns the structural categories in redaction order.
func (l *Library) Categories() []Category {
	out := make([]Category, len(l.structural))
	for i, s := range l.structural {
		out[i] = s.category
	}
	return out
}

// Triggers returns the NAME trigger vocabulary, unsorted.
func (l *Library) Triggers() []string {
	out := make([]string, 0, len(l.triggers))
	for w := range l.triggers {
		out = append(out, w)
	}
	return out
}

// IsStopWord reports whether the lower-cased word is a NAME stop word.
func (l *Library) IsStopWord(word string) bool {
	_, ok := l.stopWords[strings.ToLower(word)]
	return ok
}

func (l *Library) isToken(word string) bool {
	_, ok := l.tokens[word]
	return ok
}
