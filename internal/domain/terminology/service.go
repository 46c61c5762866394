package terminology

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

var (
	// ErrInputTooLong is returned for texts over the configured rune limit.
	ErrInputTooLong = errors.New("input text too long")
	// ErrStoreUnavailable is returned by operations that need the database
	// when none is configured.
	ErrStoreUnavailable = errors.New("persistence not configured")
	// ErrVersionExists is returned when publishing a version label twice.
	ErrVersionExists = errors.New("catalog version already exists")
)

// DefaultMaxInputChars bounds a single normalization request.
const DefaultMaxInputChars = 10000

// Metrics receives engine measurements. The telemetry provider implements it.
type Metrics interface {
	ObserveNormalization(outcome string, elapsed time.Duration)
	ObserveCategory(category string, elapsed time.Duration)
	ForbiddenFound(stage string, n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveNormalization(string, time.Duration) {}
func (noopMetrics) ObserveCategory(string, time.Duration)      {}
func (noopMetrics) ForbiddenFound(string, int)                 {}

// Normalization outcomes reported to Metrics.
const (
	OutcomeOK       = "ok"
	OutcomeFindings = "findings"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// ServiceConfig holds the tunables of the service.
type ServiceConfig struct {
	MaxInputChars int
	NFC           bool
	Audit         bool
}

// Service is the entry point used by the HTTP handler and the CLI. It always
// works against the catalog currently published in the registry.
type Service struct {
	registry *Registry
	versions CatalogVersionRepository
	audit    AuditRepository
	metrics  Metrics
	logger   zerolog.Logger
	cfg      ServiceConfig
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithVersionRepository enables catalog publishing and version listing.
func WithVersionRepository(repo CatalogVersionRepository) ServiceOption {
	return func(s *Service) { s.versions = repo }
}

// WithAuditRepository stores an audit record per normalization when
// ServiceConfig.Audit is set.
func WithAuditRepository(repo AuditRepository) ServiceOption {
	return func(s *Service) { s.audit = repo }
}

// WithMetrics wires a metrics sink.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new terminology normalization service.
func NewService(registry *Registry, cfg ServiceConfig, opts ...ServiceOption) *Service {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	s := &Service{
		registry: registry,
		metrics:  noopMetrics{},
		logger:   zerolog.Nop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the catalog registry the service reads from.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) checkInput(text string) error {
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxInputChars {
		return fmt.Errorf("%w: %d characters (max %d)", ErrInputTooLong, n, s.cfg.MaxInputChars)
	}
	return nil
}

// NormalizeRequest is one text to normalize plus caller identity for audit.
type NormalizeRequest struct {
	Text      string
	RequestID string
	UserID    string
}

// Normalize runs the full pipeline against the current catalog.
func (s *Service) Normalize(ctx context.Context, req NormalizeRequest) (*Result, error) {
	start := time.Now()
	if err := s.checkInput(req.Text); err != nil {
		s.metrics.ObserveNormalization(OutcomeRejected, time.Since(start))
		return nil, err
	}
	catalog, err := s.registry.Current()
	if err != nil {
		return nil, err
	}

	opts := []PipelineOption{WithCategoryObserver(func(cat Category, d time.Duration) {
		s.metrics.ObserveCategory(string(cat), d)
	})}
	if s.cfg.NFC {
		opts = append(opts, WithNFC())
	}

	res, err := NewPipeline(catalog, opts...).Normalize(req.Text)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveNormalization(OutcomeFailed, elapsed)
		s.logger.Error().Err(err).Str("request_id", req.RequestID).Str("catalog_version", catalog.Version()).Msg("normalization failed")
		return nil, err
	}

	outcome := OutcomeOK
	if len(res.Errors) > 0 || len(res.Warnings) > 0 {
		outcome = OutcomeFindings
	}
	s.metrics.ObserveNormalization(outcome, elapsed)
	s.metrics.ForbiddenFound("input", len(res.Errors))
	s.metrics.ForbiddenFound("output", len(res.Warnings))

	if s.cfg.Audit && s.audit != nil {
		s.recordAudit(ctx, req, res, elapsed)
	}

	return res, nil
}

// ScanForbidden reports forbidden phrases in text without rewriting it.
func (s *Service) ScanForbidden(_ context.Context, text string) (ForbiddenScan, error) {
	if err := s.checkInput(text); err != nil {
		return ForbiddenScan{}, err
	}
	catalog, err := s.registry.Current()
	if err != nil {
		return ForbiddenScan{}, err
	}
	return catalog.ScanForbidden(text), nil
}

// NormalizeSymbols applies only the symbol fixes.
func (s *Service) NormalizeSymbols(text string) (string, error) {
	if err := s.checkInput(text); err != nil {
		return "", err
	}
	return NormalizeSymbols(text), nil
}

// ItalicizeScientificNames applies only the binomial emphasis.
func (s *Service) ItalicizeScientificNames(text string) (string, error) {
	if err := s.checkInput(text); err != nil {
		return "", err
	}
	return ItalicizeScientificNames(text), nil
}

// AbbreviationCheck is the outcome of a spellout check.
type AbbreviationCheck struct {
	Abbreviation string `json:"abbreviation"`
	SpelledOut   bool   `json:"spelledOut"`
	Whitelisted  bool   `json:"whitelisted"`
}

// CheckAbbreviation checks abbreviation use in text against the whitelist.
func (s *Service) CheckAbbreviation(_ context.Context, text, abbreviation string) (*AbbreviationCheck, error) {
	if err := s.checkInput(text); err != nil {
		return nil, err
	}
	catalog, err := s.registry.Current()
	if err != nil {
		return nil, err
	}
	return &AbbreviationCheck{
		Abbreviation: abbreviation,
		SpelledOut:   catalog.IsSpelledOut(text, abbreviation),
		Whitelisted:  catalog.IsWhitelisted(abbreviation),
	}, nil
}

// CatalogInfo describes the published catalog.
func (s *Service) CatalogInfo(_ context.Context) (*CatalogInfo, error) {
	catalog, err := s.registry.Current()
	if err != nil {
		return nil, err
	}
	return catalog.Info(), nil
}

// Reload reloads the catalog from its source.
func (s *Service) Reload(ctx context.Context) (*CatalogInfo, error) {
	catalog, err := s.registry.Reload(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Info(), nil
}

// PublishRequest is a catalog document submitted for storage.
type PublishRequest struct {
	Document  []byte
	Format    Format
	Activate  bool
	CreatedBy string
}

// PublishCatalog validates and stores a catalog document as a new version.
// With Activate set it becomes the active version and, when the registry
// reads from the database, is published immediately.
func (s *Service) PublishCatalog(ctx context.Context, req PublishRequest) (*CatalogVersion, error) {
	if s.versions == nil {
		return nil, ErrStoreUnavailable
	}
	if req.Format == "" {
		req.Format = FormatYAML
	}
	catalog, err := ParseCatalog(req.Document, req.Format, s.registry.opts)
	if err != nil {
		return nil, err
	}

	if _, err := s.versions.GetByVersion(ctx, catalog.Version()); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrVersionExists, catalog.Version())
	} else if !errors.Is(err, ErrCatalogNotFound) {
		return nil, err
	}

	v := &CatalogVersion{
		Version:     catalog.Version(),
		Description: catalog.Description(),
		Format:      req.Format,
		Document:    req.Document,
		Checksum:    Checksum(req.Document),
		RuleCount:   catalog.TotalRules(),
		CreatedBy:   req.CreatedBy,
	}
	if err := s.versions.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("version", v.Version).Str("id", v.ID.String()).Int("rules", v.RuleCount).Msg("catalog version stored")

	if req.Activate {
		if err := s.activate(ctx, v, catalog); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ActivateCatalogVersion marks a stored version active.
func (s *Service) ActivateCatalogVersion(ctx context.Context, version string) (*CatalogVersion, error) {
	if s.versions == nil {
		return nil, ErrStoreUnavailable
	}
	v, err := s.versions.GetByVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	catalog, err := CompileVersion(v, s.registry.opts)
	if err != nil {
		return nil, err
	}
	if err := s.activate(ctx, v, catalog); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) activate(ctx context.Context, v *CatalogVersion, catalog *Catalog) error {
	if err := s.versions.Activate(ctx, v.ID); err != nil {
		return err
	}
	v.Active = true
	if _, ok := s.registry.Source().(DatabaseSource); ok {
		s.registry.Publish(catalog)
	}
	return nil
}

// ListCatalogVersions lists stored versions, newest first.
func (s *Service) ListCatalogVersions(ctx context.Context, limit, offset int) ([]*CatalogVersion, int, error) {
	if s.versions == nil {
		return nil, 0, ErrStoreUnavailable
	}
	return s.versions.List(ctx, limit, offset)
}

// ListAudit lists audit records, newest first.
func (s *Service) ListAudit(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error) {
	if s.audit == nil {
		return nil, 0, ErrStoreUnavailable
	}
	return s.audit.List(ctx, limit, offset)
}
