// Package patterns provides the embedded default recognizer definitions for
// clinical conversation text. The YAML format follows Presidio's recognizer
// registry layout with intake extensions (stop_words, sensitivity).
package patterns

import _ "embed"

//go:embed pii_clinical.yaml
var piiClinicalYAML []byte

// PIIClinicalYAML returns the embedded default recognizer definitions.
func PIIClinicalYAML() []byte { return piiClinicalYAML }
