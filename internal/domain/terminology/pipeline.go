package terminology

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of a normalization. FormattedText is always set;
// Errors and Warnings are findings for the caller to act on, not failures.
type Result struct {
	FormattedText  string   `json:"formattedText"`
	Warnings       []string `json:"warnings"`
	Errors         []string `json:"errors"`
	CatalogVersion string   `json:"catalogVersion"`
}

// HasErrors reports whether any blocking finding was produced.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// CategoryObserver receives the time spent in each category.
type CategoryObserver func(cat Category, elapsed time.Duration)

// Pipeline normalizes text against one catalog snapshot. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	catalog  *Catalog
	nfc      bool
	observer CategoryObserver
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithNFC composes input text to NFC before rules run.
func WithNFC() PipelineOption {
	return func(p *Pipeline) { p.nfc = true }
}

// WithCategoryObserver reports per-category timings.
func WithCategoryObserver(fn CategoryObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = fn }
}

// NewPipeline binds a pipeline to a catalog.
func NewPipeline(c *Catalog, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{catalog: c}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the snapshot the pipeline runs against.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Normalize scans the original text for forbidden phrases, runs every
// category in the fixed order, then normalizes symbols and italicizes
// scientific names. Phrases that only appear after rewriting are reported as
// warnings. An error is returned only when a rule fails.
func (p *Pipeline) Normalize(text string) (*Result, error) {
	res := &Result{
		Warnings:       []string{},
		Errors:         []string{},
		CatalogVersion: p.catalog.version,
	}

	input := p.catalog.ScanForbidden(text)
	if input.Found {
		res.Errors = append(res.Errors, fmt.Sprintf("forbidden expressions present: %s", strings.Join(input.Expressions, ", ")))
	}

	out := text
	if p.nfc {
		out = norm.NFC.String(out)
	}
	for pos, cat := range categoryOrder {
		start := time.Now()
		var err error
		out, err = applyCategory(cat, out, p.catalog.rules[pos])
		if err != nil {
			return nil, err
		}
		if p.observer != nil {
			p.observer(cat, time.Since(start))
		}
	}
	out = NormalizeSymbols(out)
	out = ItalicizeScientificNames(out)
	res.FormattedText = out

	reported := make(map[string]struct{}, len(input.Expressions))
	for _, e := range input.Expressions {
		reported[e] = struct{}{}
	}
	for _, e := range p.catalog.ScanForbidden(out).Expressions {
		if _, ok := reported[e]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("forbidden expression introduced by normalization: %s", e))
		}
	}

	return res, nil
}

// Normalize runs the full pipeline with default options.
func (c *Catalog) Normalize(text string) (*Result, error) {
	return NewPipeline(c).Normalize(text)
}
