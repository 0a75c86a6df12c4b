// Package markdownx adapts the teacher's markdown helpers
// (pkg/core/utils/markdown.go) for cleaning narrative sections an agent's
// LLM call may wrap in a code fence before they're embedded in the final
// preliminary IM.
package markdownx

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// Clean trims surrounding whitespace and strips an outer ```markdown or
// plain ``` fence.
func Clean(input string) string {
	cleaned := strings.TrimSpace(input)

	switch {
	case strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimSuffix(cleaned, "```")
	case strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

// Valid reports whether goldmark returns a document for input. goldmark's
// parser accepts any input, so Valid returns true for every string.
func Valid(input string) bool {
	parser := goldmark.DefaultParser()
	reader := text.NewReader([]byte(input))
	doc := parser.Parse(reader)
	return doc != nil
}
