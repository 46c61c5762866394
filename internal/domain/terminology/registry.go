package terminology

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// CatalogSource produces a freshly compiled catalog on every Load.
type CatalogSource interface {
	// Describe names the source for logs.
	Describe() string
	Load(ctx context.Context, opts LoadOptions) (*Catalog, error)
}

// FileSource reads a catalog document from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Describe() string { return "file:" + s.Path }

func (s FileSource) Load(_ context.Context, opts LoadOptions) (*Catalog, error) {
	return LoadCatalogFile(s.Path, opts)
}

// BytesSource compiles an in-memory document, typically the bundled default.
type BytesSource struct {
	Name   string
	Data   []byte
	Format Format
}

func (s BytesSource) Describe() string { return "embedded:" + s.Name }

func (s BytesSource) Load(_ context.Context, opts LoadOptions) (*Catalog, error) {
	return ParseCatalog(s.Data, s.Format, opts)
}

// DatabaseSource loads the active stored catalog version.
type DatabaseSource struct {
	Repo CatalogVersionRepository
}

func (s DatabaseSource) Describe() string { return "database" }

func (s DatabaseSource) Load(ctx context.Context, opts LoadOptions) (*Catalog, error) {
	v, err := s.Repo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active catalog: %w", err)
	}
	return CompileVersion(v, opts)
}

// CompileVersion builds a catalog from a stored version, keeping the stored
// version label.
func CompileVersion(v *CatalogVersion, opts LoadOptions) (*Catalog, error) {
	def, err := ParseDefinition(v.Document, v.Format)
	if err != nil {
		return nil, err
	}
	def.Version = v.Version
	return Compile(def, opts)
}

// LoadObserver is notified after every load attempt.
type LoadObserver func(c *Catalog, err error)

// Registry holds the published catalog. Readers take the current snapshot
// without locking; a reload compiles a new catalog off to the side and swaps
// it in only when it is valid, so a bad document never replaces a good one.
type Registry struct {
	current atomic.Pointer[Catalog]
	source  CatalogSource
	opts    LoadOptions
	logger  zerolog.Logger

	reloadMu  sync.Mutex
	observers []LoadObserver
}

// NewRegistry creates an empty registry. Call Reload or Publish before use.
func NewRegistry(source CatalogSource, opts LoadOptions, logger zerolog.Logger) *Registry {
	return &Registry{source: source, opts: opts, logger: logger}
}

// OnLoad registers an observer. Not safe to call concurrently with Reload.
func (r *Registry) OnLoad(fn LoadObserver) {
	r.observers = append(r.observers, fn)
}

// Source returns the configured catalog source.
func (r *Registry) Source() CatalogSource { return r.source }

// Current returns the published catalog.
func (r *Registry) Current() (*Catalog, error) {
	c := r.current.Load()
	if c == nil {
		return nil, ErrCatalogNotLoaded
	}
	return c, nil
}

// Reload loads the source and publishes the result. On failure the previous
// catalog stays published and the error is returned.
func (r *Registry) Reload(ctx context.Context) (*Catalog, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if r.source == nil {
		return nil, fmt.Errorf("reload catalog: no source configured")
	}
	c, err := r.source.Load(ctx, r.opts)
	if err != nil {
		r.logger.Error().Err(err).Str("source", r.source.Describe()).Msg("catalog load failed, keeping previous catalog")
		r.notify(nil, err)
		return nil, err
	}
	r.publish(c)
	return c, nil
}

// Publish swaps in an already compiled catalog.
func (r *Registry) Publish(c *Catalog) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	r.publish(c)
}

func (r *Registry) publish(c *Catalog) {
	prev := r.current.Swap(c)

	evt := r.logger.Info().
		Str("version", c.Version()).
		Int("rules", c.TotalRules()).
		Int("forbidden", len(c.forbidden)).
		Int("abbreviations", len(c.whitelisted))
	if prev != nil {
		evt = evt.Str("previous_version", prev.Version())
	}
	evt.Msg("catalog published")

	for _, w := range c.warnings {
		r.logger.Warn().Str("version", c.Version()).Msg(w)
	}
	r.notify(c, nil)
}

func (r *Registry) notify(c *Catalog, err error) {
	for _, fn := range r.observers {
		fn(c, err)
	}
}
