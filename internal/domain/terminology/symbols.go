package terminology

import (
	"regexp"
	"strings"
)

const (
	greekMu   = "\u03bc"
	microSign = "\u00b5"
)

var phPattern = regexp.MustCompile(`\b(?:PH|Ph)\b`)

// NormalizeSymbols fixes notation that is commonly mistyped: whole-word "PH"
// and "Ph" become "pH", and the Greek mu becomes the micro sign.
func NormalizeSymbols(text string) string {
	text = phPattern.ReplaceAllLiteralString(text, "pH")
	return strings.ReplaceAll(text, greekMu, microSign)
}
