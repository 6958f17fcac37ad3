package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/clinicalintel/intake/internal/pii"
)

// Output formats for --format.
const (
	formatText = "text"
	formatJSON = "json"
)

func checkFormat(f string) error {
	switch f {
	case formatText, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown format %q (want text or json)", f)
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatCategories renders a category set for humans: "DATE, NAME" or "none".
func formatCategories(s pii.CategorySet) string {
	if s.Len() == 0 {
		return "none"
	}
	return strings.Join(s.Strings(), ", ")
}

// parseCategories converts --allow values; each value may itself be a
// comma-separated list.
func parseCategories(values []string) (pii.CategorySet, error) {
	set := pii.NewCategorySet()
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			c, ok := pii.ParseCategory(name)
			if !ok {
				return nil, fmt.Errorf("unknown category %q (want NAME, DATE or SSN)", name)
			}
			set.Add(c)
		}
	}
	return set, nil
}
