package terminology

import (
	"strings"
	"unicode/utf8"
)

// ForbiddenPosition locates the first occurrence of a forbidden phrase.
// Position counts characters (runes); ByteOffset indexes the UTF-8 string.
type ForbiddenPosition struct {
	Expression string `json:"expression"`
	Position   int    `json:"position"`
	ByteOffset int    `json:"byteOffset"`
}

// ForbiddenScan is the result of scanning a text for forbidden phrases.
type ForbiddenScan struct {
	Found       bool                `json:"found"`
	Expressions []string            `json:"expressions"`
	Positions   []ForbiddenPosition `json:"positions"`
}

// ScanForbidden searches text for each phrase, case-sensitively and in the
// given order, recording only the first occurrence of each.
func ScanForbidden(text string, phrases []string) ForbiddenScan {
	res := ForbiddenScan{Expressions: []string{}, Positions: []ForbiddenPosition{}}
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		idx := strings.Index(text, phrase)
		if idx < 0 {
			continue
		}
		res.Expressions = append(res.Expressions, phrase)
		res.Positions = append(res.Positions, ForbiddenPosition{
			Expression: phrase,
			Position:   utf8.RuneCountInString(text[:idx]),
			ByteOffset: idx,
		})
	}
	res.Found = len(res.Expressions) > 0
	return res
}

// ScanForbidden scans text against the catalog's forbidden list.
func (c *Catalog) ScanForbidden(text string) ForbiddenScan {
	return ScanForbidden(text, c.forbidden)
}
