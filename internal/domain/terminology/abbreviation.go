package terminology

import "regexp"

// SpelloutPolicy decides whether an abbreviation used in text was introduced
// with its spelled-out form. It is consulted only for abbreviations that are
// not whitelisted and do occur in the text.
type SpelloutPolicy interface {
	SpelledOut(text, abbreviation string) bool
}

// permissivePolicy accepts every use. Detecting a prior definition needs a
// whole-document analysis that this engine does not perform; callers that
// have one can supply their own SpelloutPolicy.
type permissivePolicy struct{}

func (permissivePolicy) SpelledOut(string, string) bool { return true }

// SpelloutChecker validates abbreviation use against a whitelist.
type SpelloutChecker struct {
	catalog *Catalog
	policy  SpelloutPolicy
}

// SpelloutChecker returns a checker bound to the catalog whitelist. A nil
// policy selects the permissive default.
func (c *Catalog) SpelloutChecker(policy SpelloutPolicy) *SpelloutChecker {
	if policy == nil {
		policy = permissivePolicy{}
	}
	return &SpelloutChecker{catalog: c, policy: policy}
}

// IsSpelledOut reports whether abbreviation satisfies the spellout policy in
// text. Whitelisted and absent abbreviations always pass.
func (s *SpelloutChecker) IsSpelledOut(text, abbreviation string) bool {
	if abbreviation == "" || s.catalog.IsWhitelisted(abbreviation) {
		return true
	}
	if !containsWord(text, abbreviation) {
		return true
	}
	return s.policy.SpelledOut(text, abbreviation)
}

// IsSpelledOut checks abbreviation with the default policy.
func (c *Catalog) IsSpelledOut(text, abbreviation string) bool {
	return c.SpelloutChecker(nil).IsSpelledOut(text, abbreviation)
}

// containsWord matches word as a whole, case-insensitive token.
func containsWord(text, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(text)
}
