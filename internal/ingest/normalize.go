package ingest

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Normalize folds CRLF line endings, collapses runs of blank space inside
// each line and drops empty lines. Every other character, including '<' and
// '>' in clinical shorthand such as "K<3.5", is kept.
func Normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// StripMarkup removes tags and decodes entities from an HTML document, then
// normalizes the remaining text. Use it only on input known to be HTML.
func StripMarkup(doc string) string {
	return Normalize(html.UnescapeString(strict.Sanitize(doc)))
}
