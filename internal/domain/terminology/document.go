package terminology

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a catalog document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the document format from a file extension. Anything
// that is not .json is read as YAML, which also accepts JSON input.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Document keys that are not rule categories.
const (
	keyVersion       = "version"
	keyDescription   = "description"
	keyForbidden     = "forbidden_expressions"
	keyForbiddenJA   = "感情表現禁止"
	keyAbbreviations = "abbreviations"
	keyAbbrevJA      = "略語"
)

// LoadOptions controls catalog validation.
type LoadOptions struct {
	// Strict turns unknown top-level keys into a ConfigurationError instead
	// of a load warning.
	Strict bool
}

// Definition is the typed form of a catalog document.
type Definition struct {
	Version       string
	Description   string
	Categories    map[Category][]RuleSpec
	Forbidden     []string
	Abbreviations []string
	// UnknownKeys are top-level keys that matched no known section.
	UnknownKeys []string
}

type categorySection struct {
	Rules []RuleSpec `json:"rules" yaml:"rules"`
}

type forbiddenSection struct {
	Forbidden []string `json:"forbidden" yaml:"forbidden"`
}

type abbreviationSection struct {
	CommonAbbreviations []string `json:"commonAbbreviations" yaml:"commonAbbreviations"`
}

// section defers decoding of one top-level value until its key is known.
type section interface {
	decode(v any) error
}

type jsonSection json.RawMessage

func (s jsonSection) decode(v any) error { return json.Unmarshal(s, v) }

type yamlSection struct{ node yaml.Node }

func (s *yamlSection) decode(v any) error { return s.node.Decode(v) }

func splitSections(data []byte, format Format) (map[string]section, error) {
	out := make(map[string]section)
	switch format {
	case FormatJSON:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			out[k] = jsonSection(v)
		}
	default:
		var raw map[string]*yamlSection
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			if v != nil {
				out[k] = v
			}
		}
	}
	return out, nil
}

func (s *yamlSection) UnmarshalYAML(node *yaml.Node) error {
	s.node = *node
	return nil
}

// ParseDefinition decodes a catalog document without compiling its rules.
func ParseDefinition(data []byte, format Format) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigurationError{Index: -1, Reason: "empty document"}
	}
	sections, err := splitSections(data, format)
	if err != nil {
		return nil, &ConfigurationError{Index: -1, Reason: "parse document", Err: err}
	}

	def := &Definition{Categories: make(map[Category][]RuleSpec)}
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		sec := sections[key]
		switch key {
		case keyVersion:
			def.Version, err = decodeScalar(sec)
		case keyDescription:
			def.Description, err = decodeScalar(sec)
		case keyForbidden, keyForbiddenJA:
			var fs forbiddenSection
			err = sec.decode(&fs)
			def.Forbidden = append(def.Forbidden, fs.Forbidden...)
		case keyAbbreviations, keyAbbrevJA:
			var as abbreviationSection
			err = sec.decode(&as)
			def.Abbreviations = append(def.Abbreviations, as.CommonAbbreviations...)
		default:
			cat, ok := ParseCategory(key)
			if !ok {
				def.UnknownKeys = append(def.UnknownKeys, key)
				continue
			}
			if _, dup := def.Categories[cat]; dup {
				return nil, &ConfigurationError{Category: cat, Index: -1, Reason: fmt.Sprintf("category defined twice (key %q)", key)}
			}
			var cs categorySection
			if err := sec.decode(&cs); err != nil {
				return nil, &ConfigurationError{Category: cat, Index: -1, Reason: "decode rules", Err: err}
			}
			def.Categories[cat] = cs.Rules
		}
		if err != nil {
			return nil, &ConfigurationError{Index: -1, Reason: fmt.Sprintf("decode %q", key), Err: err}
		}
	}
	return def, nil
}

func decodeScalar(sec section) (string, error) {
	var s string
	if err := sec.decode(&s); err == nil {
		return s, nil
	}
	var v any
	if err := sec.decode(&v); err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

// Compile validates a definition and builds an immutable Catalog. Every
// pattern is compiled here so that a bad rule fails the load rather than a
// later normalization.
func Compile(def *Definition, opts LoadOptions) (*Catalog, error) {
	c := &Catalog{
		version:     def.Version,
		description: def.Description,
		loadedAt:    time.Now().UTC(),
		whitelist:   make(map[string]struct{}),
	}

	for _, key := range def.UnknownKeys {
		if opts.Strict {
			return nil, &ConfigurationError{Category: Category(key), Index: -1, Reason: "unknown category"}
		}
		c.warnings = append(c.warnings, fmt.Sprintf("unknown section %q ignored", key))
	}

	for pos, cat := range categoryOrder {
		specs := def.Categories[cat]
		rules := make([]Rule, 0, len(specs))
		for i, spec := range specs {
			spec = foldSpec(spec)
			if spec.Regex && len(spec.Context) > 0 {
				c.warnings = append(c.warnings, fmt.Sprintf("%s rule %d: context ignored on regex rule", cat, i))
			}
			rule, err := compileRule(spec)
			if err != nil {
				return nil, &ConfigurationError{Category: cat, Index: i, Reason: "invalid rule", Err: err}
			}
			rules = append(rules, rule)
		}
		c.rules[pos] = rules
	}

	for i, phrase := range def.Forbidden {
		phrase = norm.NFC.String(phrase)
		if phrase == "" {
			return nil, &ConfigurationError{Index: i, Reason: "empty forbidden expression"}
		}
		c.forbidden = append(c.forbidden, phrase)
	}

	for _, abbr := range def.Abbreviations {
		abbr = strings.TrimSpace(norm.NFC.String(abbr))
		if abbr == "" {
			continue
		}
		if _, dup := c.whitelist[abbr]; dup {
			continue
		}
		c.whitelist[abbr] = struct{}{}
		c.whitelisted = append(c.whitelisted, abbr)
	}

	return c, nil
}

// foldSpec brings catalog text into NFC so that decomposed kana typed in an
// editor still matches composed input.
func foldSpec(spec RuleSpec) RuleSpec {
	spec.Pattern = norm.NFC.String(spec.Pattern)
	spec.Replacement = norm.NFC.String(spec.Replacement)
	if len(spec.Context) > 0 {
		ctx := make([]string, len(spec.Context))
		for i, s := range spec.Context {
			ctx[i] = norm.NFC.String(s)
		}
		spec.Context = ctx
	}
	return spec
}

// ParseCatalog decodes and compiles a catalog document. Documents without a
// version are identified by a checksum of their bytes.
func ParseCatalog(data []byte, format Format, opts LoadOptions) (*Catalog, error) {
	def, err := ParseDefinition(data, format)
	if err != nil {
		return nil, err
	}
	if def.Version == "" {
		def.Version = Checksum(data)
	}
	return Compile(def, opts)
}

// LoadCatalogFile reads and compiles a catalog document from disk.
func LoadCatalogFile(path string, opts LoadOptions) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data, FormatFromPath(path), opts)
}

// Checksum returns the short content hash used as an implicit version.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])[:12]
}
