// Package sanitize strips markup from user-authored text before it is stored.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element; script and style bodies are dropped entirely.
var strict = bluemonday.StrictPolicy()

// Text returns s with all HTML removed, entities decoded, and surrounding space trimmed.
func Text(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
