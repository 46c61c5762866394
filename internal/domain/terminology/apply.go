package terminology

import "fmt"

// RuleError reports a rule that failed while rewriting text. It aborts the
// whole normalization.
type RuleError struct {
	Category Category
	Index    int
	Pattern  string
	Cause    any
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("apply %s rule %d (%q): %v", e.Category, e.Index, e.Pattern, e.Cause)
}

func (e *RuleError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

// Apply runs rules over text in order, each rule seeing the output of the
// previous one.
func Apply(text string, rules []Rule) string {
	for _, r := range rules {
		text = r.Apply(text)
	}
	return text
}

// applyCategory is Apply with failures attributed to the offending rule.
func applyCategory(cat Category, text string, rules []Rule) (out string, err error) {
	idx := 0
	defer func() {
		if p := recover(); p != nil {
			err = &RuleError{Category: cat, Index: idx, Pattern: rules[idx].Pattern(), Cause: p}
		}
	}()
	for i, r := range rules {
		idx = i
		text = r.Apply(text)
	}
	return text, nil
}
