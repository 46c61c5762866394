package terminology

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPipeline_Scenarios(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"literal duplicates suffix", "エコー検査を実施した", "超音波検査検査を実施した"},
		{"regex age", "15才男子が来院した", "15歳男子が来院した"},
		{"contextual", "ダウン症の児を診察した", "Down症候群の児を診察した"},
		{"no context match", "ダウン症候群", "ダウン症候群"},
		{"symbols", "PH 7.4, 5 \u03bcg", "pH 7.4, 5 \u00b5g"},
		{"scientific name", "Escherichia coli was isolated", "*Escherichia coli* was isolated"},
		{"already normalized", "Down症候群", "Down症候群"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if res.FormattedText != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, res.FormattedText, tt.want)
			}
			if res.CatalogVersion != "t-1" {
				t.Errorf("expected catalog version t-1, got %q", res.CatalogVersion)
			}
			if res.Errors == nil || res.Warnings == nil {
				t.Error("expected non-nil findings slices")
			}
		})
	}
}

func TestPipeline_ExhaustiveReplacement(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	in := strings.Repeat("エコーと3才、", 5)
	res, err := c.Normalize(in)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if strings.Contains(res.FormattedText, "エコー") || strings.Contains(res.FormattedText, "才") {
		t.Errorf("expected every occurrence replaced, got %q", res.FormattedText)
	}
	if n := strings.Count(res.FormattedText, "超音波検査"); n != 5 {
		t.Errorf("expected 5 replacements, got %d", n)
	}
}

func TestPipeline_ForbiddenIsFindingNotFailure(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	res, err := c.Normalize("無念にもエコーで残念ながら")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if res.FormattedText != "無念にも超音波検査で残念ながら" {
		t.Errorf("expected text still formatted, got %q", res.FormattedText)
	}
	if !res.HasErrors() || len(res.Errors) != 1 {
		t.Fatalf("expected one error entry, got %v", res.Errors)
	}
	if res.Errors[0] != "forbidden expressions present: 無念, 残念ながら" {
		t.Errorf("unexpected error text %q", res.Errors[0])
	}
	if len(res.Warnings) != 0 {
		t.Errorf("phrases present in the input must not be repeated as warnings: %v", res.Warnings)
	}
}

func TestPipeline_IntroducedForbiddenWarning(t *testing.T) {
	doc := `
version: w
sentence-style:
  rules:
    - pattern: 力及ばず
      replacement: 無念
forbidden_expressions:
  forbidden: [無念]
`
	c := mustParse(t, doc, FormatYAML)
	res, err := c.Normalize("力及ばず")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("expected no input errors, got %v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "無念") {
		t.Errorf("expected introduced-phrase warning, got %v", res.Warnings)
	}
}

func TestPipeline_CategoryOrderMatters(t *testing.T) {
	forward := `
test-name:
  rules: [{pattern: A, replacement: B}]
drug-naming:
  rules: [{pattern: B, replacement: C}]
`
	swapped := `
test-name:
  rules: [{pattern: B, replacement: C}]
drug-naming:
  rules: [{pattern: A, replacement: B}]
`
	a, _ := mustParse(t, forward, FormatYAML).Normalize("A")
	b, _ := mustParse(t, swapped, FormatYAML).Normalize("A")
	if a.FormattedText != "C" || b.FormattedText != "B" {
		t.Errorf("expected C and B, got %q and %q", a.FormattedText, b.FormattedText)
	}
}

func TestPipeline_DocumentOrderIgnored(t *testing.T) {
	// Sections listed out of order still run in the fixed order.
	doc := `
drug-naming:
  rules: [{pattern: B, replacement: C}]
test-name:
  rules: [{pattern: A, replacement: B}]
`
	res, _ := mustParse(t, doc, FormatYAML).Normalize("A")
	if res.FormattedText != "C" {
		t.Errorf("expected C, got %q", res.FormattedText)
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	in := "ダウン症の児、15才。エコーでStaphylococcus aureusを疑いPH 7.0、10 \u03bcg投与"
	once, err := c.Normalize(in)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	twice, err := c.Normalize(once.FormattedText)
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if once.FormattedText != twice.FormattedText {
		t.Errorf("expected stable output\n once: %q\ntwice: %q", once.FormattedText, twice.FormattedText)
	}
}

func TestPipeline_NFC(t *testing.T) {
	c := mustParse(t, "version: n\nmedical-term-spelling:\n  rules: [{pattern: \"\u30ac\u30f3\", replacement: 悪性腫瘍}]\n", FormatYAML)
	decomposed := "\u30ab\u3099\u30f3"

	res, _ := NewPipeline(c).Normalize(decomposed)
	if res.FormattedText != decomposed {
		t.Errorf("expected decomposed input untouched without NFC, got %q", res.FormattedText)
	}
	res, _ = NewPipeline(c, WithNFC()).Normalize(decomposed)
	if res.FormattedText != "悪性腫瘍" {
		t.Errorf("expected NFC input to match, got %q", res.FormattedText)
	}
}

func TestPipeline_CategoryObserver(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	var seen []Category
	p := NewPipeline(c, WithCategoryObserver(func(cat Category, _ time.Duration) {
		seen = append(seen, cat)
	}))
	if _, err := p.Normalize("text"); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	order := CategoryOrder()
	if len(seen) != len(order) {
		t.Fatalf("expected %d observations, got %d", len(order), len(seen))
	}
	for i := range order {
		if seen[i] != order[i] {
			t.Errorf("observation %d: expected %s, got %s", i, order[i], seen[i])
		}
	}
}

type panicRule struct{}

func (panicRule) Kind() RuleKind      { return KindRegex }
func (panicRule) Pattern() string     { return "boom" }
func (panicRule) Note() string        { return "" }
func (panicRule) Apply(string) string { panic("evaluation failed") }

func TestPipeline_RuleFailureAborts(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	pos := CategoryDrugNaming.position()
	c.rules[pos] = []Rule{c.rules[1][0], panicRule{}}

	res, err := c.Normalize("エコー")
	if res != nil {
		t.Errorf("expected no result, got %+v", res)
	}
	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	if ruleErr.Category != CategoryDrugNaming || ruleErr.Index != 1 || ruleErr.Pattern != "boom" {
		t.Errorf("unexpected error attribution %+v", ruleErr)
	}
	if !strings.Contains(err.Error(), "drug-naming rule 1") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestApply(t *testing.T) {
	r1, _ := compileRule(RuleSpec{Pattern: "a", Replacement: "b"})
	r2, _ := compileRule(RuleSpec{Pattern: "b", Replacement: "c"})
	if got := Apply("aab", []Rule{r1, r2}); got != "ccc" {
		t.Errorf("expected rules to chain, got %q", got)
	}
	if got := Apply("aab", nil); got != "aab" {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestPipeline_Concurrent(t *testing.T) {
	c := mustParse(t, testCatalogYAML, FormatYAML)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res, err := c.Normalize("エコー検査を実施した")
				if err != nil || res.FormattedText != "超音波検査検査を実施した" {
					t.Errorf("unexpected result %v %v", res, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
