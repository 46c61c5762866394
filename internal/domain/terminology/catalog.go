package terminology

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCatalogNotLoaded is returned when no catalog has been published yet.
	ErrCatalogNotLoaded = errors.New("rule catalog not loaded")
	// ErrCatalogNotFound is returned when a stored catalog version does not exist.
	ErrCatalogNotFound = errors.New("rule catalog version not found")
)

// ConfigurationError reports a catalog document that cannot be loaded. Index
// is the rule position within Category, or -1 for section-level problems.
type ConfigurationError struct {
	Category Category
	Index    int
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "rule catalog: "
	switch {
	case e.Category != "" && e.Index >= 0:
		msg += fmt.Sprintf("%s rule %d: ", e.Category, e.Index)
	case e.Category != "":
		msg += fmt.Sprintf("%s: ", e.Category)
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Catalog is a validated, read-only rule catalog. It is built once by the
// loader and never mutated; reloads publish a new Catalog.
type Catalog struct {
	version     string
	description string
	loadedAt    time.Time
	rules       [len(categoryOrder)][]Rule
	forbidden   []string
	whitelist   map[string]struct{}
	whitelisted []string
	warnings    []string
}

// Version identifies the catalog document.
func (c *Catalog) Version() string { return c.version }

// Description is the optional free-text description from the document.
func (c *Catalog) Description() string { return c.description }

// LoadedAt is when the catalog was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// Warnings lists non-fatal findings produced while loading.
func (c *Catalog) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// Rules returns the ordered rules for a category.
func (c *Catalog) Rules(cat Category) []Rule {
	pos := cat.position()
	if pos < 0 {
		return nil
	}
	return append([]Rule(nil), c.rules[pos]...)
}

// RuleCount returns the number of rules in a category.
func (c *Catalog) RuleCount(cat Category) int {
	pos := cat.position()
	if pos < 0 {
		return 0
	}
	return len(c.rules[pos])
}

// TotalRules returns the number of rules across all categories.
func (c *Catalog) TotalRules() int {
	n := 0
	for _, rs := range c.rules {
		n += len(rs)
	}
	return n
}

// ForbiddenExpressions returns the forbidden phrases in catalog order.
func (c *Catalog) ForbiddenExpressions() []string {
	return append([]string(nil), c.forbidden...)
}

// Abbreviations returns the whitelist in document order.
func (c *Catalog) Abbreviations() []string {
	return append([]string(nil), c.whitelisted...)
}

// IsWhitelisted reports whether abbreviation is exempt from spellout checks.
func (c *Catalog) IsWhitelisted(abbreviation string) bool {
	_, ok := c.whitelist[abbreviation]
	return ok
}

// CategorySummary is the rule count of one category.
type CategorySummary struct {
	Category Category `json:"category"`
	Rules    int      `json:"rules"`
}

// CatalogInfo describes the published catalog.
type CatalogInfo struct {
	Version       string            `json:"version"`
	Description   string            `json:"description,omitempty"`
	LoadedAt      time.Time         `json:"loaded_at"`
	Categories    []CategorySummary `json:"categories"`
	TotalRules    int               `json:"total_rules"`
	Forbidden     int               `json:"forbidden_expressions"`
	Abbreviations int               `json:"abbreviations"`
	Warnings      []string          `json:"warnings"`
}

// Info summarizes the catalog with categories in application order.
func (c *Catalog) Info() *CatalogInfo {
	info := &CatalogInfo{
		Version:       c.version,
		Description:   c.description,
		LoadedAt:      c.loadedAt,
		TotalRules:    c.TotalRules(),
		Forbidden:     len(c.forbidden),
		Abbreviations: len(c.whitelisted),
		Warnings:      c.Warnings(),
	}
	if info.Warnings == nil {
		info.Warnings = []string{}
	}
	for i, cat := range categoryOrder {
		info.Categories = append(info.Categories, CategorySummary{Category: cat, Rules: len(c.rules[i])})
	}
	return info
}
