package terminology

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleKind identifies the variant of a compiled rule.
type RuleKind string

const (
	KindLiteral    RuleKind = "literal"
	KindContextual RuleKind = "contextual"
	KindRegex      RuleKind = "regex"
)

// RuleSpec is a rule record as written in a catalog document.
type RuleSpec struct {
	Pattern       string   `json:"pattern" yaml:"pattern"`
	Replacement   string   `json:"replacement" yaml:"replacement"`
	Context       []string `json:"context,omitempty" yaml:"context,omitempty"`
	CaseSensitive *bool    `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	Regex         bool     `json:"regex,omitempty" yaml:"regex,omitempty"`
	Note          string   `json:"note,omitempty" yaml:"note,omitempty"`
}

func (s RuleSpec) caseSensitive() bool {
	return s.CaseSensitive == nil || *s.CaseSensitive
}

// Rule is a compiled, immutable substitution. Every kind replaces all
// occurrences of its pattern.
type Rule interface {
	Kind() RuleKind
	Pattern() string
	Note() string
	Apply(text string) string
}

// literalMatcher replaces every occurrence of a fixed string, optionally
// ignoring case.
type literalMatcher struct {
	from string
	to   string
	fold *regexp.Regexp
}

func newLiteralMatcher(from, to string, caseSensitive bool) literalMatcher {
	m := literalMatcher{from: from, to: to}
	if !caseSensitive {
		m.fold = regexp.MustCompile("(?i)" + regexp.QuoteMeta(from))
	}
	return m
}

func (m literalMatcher) replace(text string) string {
	if m.fold != nil {
		return m.fold.ReplaceAllLiteralString(text, m.to)
	}
	return strings.ReplaceAll(text, m.from, m.to)
}

// LiteralRule rewrites a fixed string.
type LiteralRule struct {
	matcher literalMatcher
	note    string
}

func (r *LiteralRule) Kind() RuleKind  { return KindLiteral }
func (r *LiteralRule) Pattern() string { return r.matcher.from }
func (r *LiteralRule) Note() string    { return r.note }

// Replacement returns the substituted text.
func (r *LiteralRule) Replacement() string { return r.matcher.to }

// CaseSensitive reports whether matching respects case.
func (r *LiteralRule) CaseSensitive() bool { return r.matcher.fold == nil }

func (r *LiteralRule) Apply(text string) string {
	return r.matcher.replace(text)
}

// ContextualRule rewrites a fixed string only when it is directly followed by
// one of its suffixes. Each suffix expands to pattern+suffix -> replacement+suffix
// and the pairs run in suffix order.
type ContextualRule struct {
	pattern     string
	replacement string
	suffixes    []string
	pairs       []literalMatcher
	note        string
}

func (r *ContextualRule) Kind() RuleKind  { return KindContextual }
func (r *ContextualRule) Pattern() string { return r.pattern }
func (r *ContextualRule) Note() string    { return r.note }

// Replacement returns the substituted text before the suffix.
func (r *ContextualRule) Replacement() string { return r.replacement }

// Suffixes returns the context suffixes in application order.
func (r *ContextualRule) Suffixes() []string {
	return append([]string(nil), r.suffixes...)
}

func (r *ContextualRule) Apply(text string) string {
	for _, p := range r.pairs {
		text = p.replace(text)
	}
	return text
}

// RegexRule rewrites every match of a regular expression using an expansion
// template.
type RegexRule struct {
	re       *regexp.Regexp
	source   string
	template string
	note     string
}

func (r *RegexRule) Kind() RuleKind  { return KindRegex }
func (r *RegexRule) Pattern() string { return r.source }
func (r *RegexRule) Note() string    { return r.note }

// Template returns the replacement in regexp.Expand syntax.
func (r *RegexRule) Template() string { return r.template }

func (r *RegexRule) Apply(text string) string {
	return r.re.ReplaceAllString(text, r.template)
}

// compileRule resolves a document record into its rule kind. Regex takes
// precedence over context suffixes, and an empty suffix list is a plain
// literal.
func compileRule(spec RuleSpec) (Rule, error) {
	if spec.Pattern == "" {
		return nil, fmt.Errorf("pattern is empty")
	}

	if spec.Regex {
		src := spec.Pattern
		if !spec.caseSensitive() {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", spec.Pattern, err)
		}
		tmpl, err := convertTemplate(spec.Replacement, re)
		if err != nil {
			return nil, err
		}
		return &RegexRule{re: re, source: spec.Pattern, template: tmpl, note: spec.Note}, nil
	}

	if len(spec.Context) > 0 {
		r := &ContextualRule{
			pattern:     spec.Pattern,
			replacement: spec.Replacement,
			suffixes:    append([]string(nil), spec.Context...),
			note:        spec.Note,
		}
		for _, suffix := range spec.Context {
			r.pairs = append(r.pairs, newLiteralMatcher(spec.Pattern+suffix, spec.Replacement+suffix, spec.caseSensitive()))
		}
		return r, nil
	}

	return &LiteralRule{
		matcher: newLiteralMatcher(spec.Pattern, spec.Replacement, spec.caseSensitive()),
		note:    spec.Note,
	}, nil
}

// convertTemplate rewrites an ECMAScript-style replacement ($1, $&, $$, $<name>)
// into regexp.Expand syntax. Group references are always braced because Go
// would otherwise read "$1歳" as a reference to a group named "1歳".
func convertTemplate(js string, re *regexp.Regexp) (string, error) {
	if !strings.Contains(js, "$") {
		return js, nil
	}
	groups := re.NumSubexp()
	var b strings.Builder
	for i := 0; i < len(js); i++ {
		ch := js[i]
		if ch != '$' {
			b.WriteByte(ch)
			continue
		}
		if i+1 >= len(js) {
			b.WriteString("$$")
			continue
		}
		next := js[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next >= '0' && next <= '9':
			digits := 1
			if i+2 < len(js) && js[i+2] >= '0' && js[i+2] <= '9' {
				if n, _ := strconv.Atoi(js[i+1 : i+3]); n >= 1 && n <= groups {
					digits = 2
				}
			}
			n, _ := strconv.Atoi(js[i+1 : i+1+digits])
			if n < 1 || n > groups {
				b.WriteString("$$")
				b.WriteString(js[i+1 : i+1+digits])
			} else {
				fmt.Fprintf(&b, "${%d}", n)
			}
			i += digits
		case next == '<':
			end := strings.IndexByte(js[i+2:], '>')
			if end < 0 || re.SubexpIndex(js[i+2:i+2+end]) < 0 {
				b.WriteString("$$")
				continue
			}
			fmt.Fprintf(&b, "${%s}", js[i+2:i+2+end])
			i += 2 + end
		case next == '`' || next == '\'':
			return "", fmt.Errorf("replacement token $%c is not supported", next)
		default:
			b.WriteString("$$")
		}
	}
	return b.String(), nil
}
