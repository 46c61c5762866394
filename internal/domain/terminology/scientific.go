package terminology

import (
	"regexp"
	"strings"
)

// binomialPattern is a shape heuristic for genus + species names. Ordinary
// two-word phrases of the same shape ("Tokyo station") match too.
var binomialPattern = regexp.MustCompile(`\b[A-Z][a-z]+ [a-z]+\b`)

// ItalicizeScientificNames wraps binomial-shaped tokens in Markdown emphasis.
// Tokens already enclosed in asterisks are left alone, so the function is
// idempotent.
func ItalicizeScientificNames(text string) string {
	matches := binomialPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 2*len(matches))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && text[start-1] == '*' && end < len(text) && text[end] == '*' {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteByte('*')
		b.WriteString(text[start:end])
		b.WriteByte('*')
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
