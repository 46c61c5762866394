package terminology

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

// switchSource serves whichever document is currently set.
type switchSource struct {
	mu  sync.Mutex
	doc string
}

func (s *switchSource) set(doc string) {
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

func (s *switchSource) Describe() string { return "test" }

func (s *switchSource) Load(_ context.Context, opts LoadOptions) (*Catalog, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	return ParseCatalog([]byte(doc), FormatYAML, opts)
}

func TestRegistry_NotLoaded(t *testing.T) {
	r := NewRegistry(&switchSource{}, LoadOptions{}, zerolog.Nop())
	if _, err := r.Current(); !errors.Is(err, ErrCatalogNotLoaded) {
		t.Errorf("expected ErrCatalogNotLoaded, got %v", err)
	}
}

func TestRegistry_ReloadKeepsPreviousOnFailure(t *testing.T) {
	src := &switchSource{doc: "version: v1\n"}
	r := NewRegistry(src, LoadOptions{}, zerolog.Nop())

	var loads, failures int
	r.OnLoad(func(c *Catalog, err error) {
		if err != nil {
			failures++
			return
		}
		loads++
	})

	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	src.set("test-name:\n  rules:\n    - pattern: '('\n      replacement: x\n      regex: true\n")
	_, err := r.Reload(context.Background())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	cur, err := r.Current()
	if err != nil || cur.Version() != "v1" {
		t.Errorf("expected v1 still published, got %v %v", cur, err)
	}

	src.set("version: v2\n")
	if c, err := r.Reload(context.Background()); err != nil || c.Version() != "v2" {
		t.Fatalf("expected v2, got %v %v", c, err)
	}
	if cur, _ := r.Current(); cur.Version() != "v2" {
		t.Errorf("expected v2 published, got %s", cur.Version())
	}
	if loads != 2 || failures != 1 {
		t.Errorf("expected 2 loads and 1 failure, got %d and %d", loads, failures)
	}
}

func TestRegistry_StrictOptions(t *testing.T) {
	src := &switchSource{doc: "version: s\nmystery: {}\n"}
	if _, err := NewRegistry(src, LoadOptions{Strict: true}, zerolog.Nop()).Reload(context.Background()); err == nil {
		t.Error("expected strict registry to reject unknown keys")
	}
	c, err := NewRegistry(src, LoadOptions{}, zerolog.Nop()).Reload(context.Background())
	if err != nil || len(c.Warnings()) != 1 {
		t.Errorf("expected lenient load with warning, got %v %v", c, err)
	}
}

func TestRegistry_NoSource(t *testing.T) {
	r := NewRegistry(nil, LoadOptions{}, zerolog.Nop())
	if _, err := r.Reload(context.Background()); err == nil {
		t.Error("expected error without a source")
	}
	r.Publish(mustParse(t, "version: p\n", FormatYAML))
	if c, err := r.Current(); err != nil || c.Version() != "p" {
		t.Errorf("expected published catalog, got %v %v", c, err)
	}
}

func TestRegistry_ConcurrentReadsDuringReload(t *testing.T) {
	src := &switchSource{doc: "version: a\ntest-name:\n  rules: [{pattern: X, replacement: A}]\n"}
	r := NewRegistry(src, LoadOptions{}, zerolog.Nop())
	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				c, err := r.Current()
				if err != nil {
					t.Errorf("Current() error: %v", err)
					return
				}
				res, err := c.Normalize("X")
				if err != nil {
					t.Errorf("Normalize() error: %v", err)
					return
				}
				// Each snapshot is self-consistent: version a rewrites to A, b to B.
				want := map[string]string{"a": "A", "b": "B"}[c.Version()]
				if res.FormattedText != want || res.CatalogVersion != c.Version() {
					t.Errorf("torn snapshot: version %s produced %q", c.Version(), res.FormattedText)
					return
				}
			}
		}()
	}

	docs := []string{
		"version: b\ntest-name:\n  rules: [{pattern: X, replacement: B}]\n",
		"version: a\ntest-name:\n  rules: [{pattern: X, replacement: A}]\n",
	}
	for i := 0; i < 50; i++ {
		src.set(docs[i%2])
		if _, err := r.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error: %v", err)
		}
	}
	stop.Store(true)
	wg.Wait()
}

func TestDatabaseSource(t *testing.T) {
	repo := newMockVersionRepo()
	src := DatabaseSource{Repo: repo}
	if _, err := src.Load(context.Background(), LoadOptions{}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}

	v := &CatalogVersion{Version: "stored-1", Format: FormatYAML, Document: []byte("version: ignored\n")}
	repo.Create(context.Background(), v)
	repo.Activate(context.Background(), v.ID)

	c, err := src.Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Version() != "stored-1" {
		t.Errorf("expected stored version label, got %q", c.Version())
	}
}

func TestBytesSource(t *testing.T) {
	src := BytesSource{Name: "inline", Data: []byte(`{"version":"b-1"}`), Format: FormatJSON}
	if src.Describe() != "embedded:inline" {
		t.Errorf("unexpected description %q", src.Describe())
	}
	c, err := src.Load(context.Background(), LoadOptions{})
	if err != nil || c.Version() != "b-1" {
		t.Errorf("unexpected load %v %v", c, err)
	}
}
