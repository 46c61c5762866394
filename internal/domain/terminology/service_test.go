package terminology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock Repositories --

type mockVersionRepo struct {
	mu       sync.Mutex
	versions map[uuid.UUID]*CatalogVersion
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{versions: make(map[uuid.UUID]*CatalogVersion)}
}

func (m *mockVersionRepo) Create(_ context.Context, v *CatalogVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	m.versions[v.ID] = v
	return nil
}

func (m *mockVersionRepo) GetActive(_ context.Context) (*CatalogVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Active {
			return v, nil
		}
	}
	return nil, ErrCatalogNotFound
}

func (m *mockVersionRepo) GetByVersion(_ context.Context, version string) (*CatalogVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, ErrCatalogNotFound
}

func (m *mockVersionRepo) List(_ context.Context, limit, offset int) ([]*CatalogVersion, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CatalogVersion
	for _, v := range m.versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockVersionRepo) Activate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[id]; !ok {
		return ErrCatalogNotFound
	}
	for vid, v := range m.versions {
		v.Active = vid == id
	}
	return nil
}

type mockAuditRepo struct {
	records []*AuditRecord
	err     error
}

func (m *mockAuditRepo) Create(_ context.Context, r *AuditRecord) error {
	if m.err != nil {
		return m.err
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records = append(m.records, r)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, limit, offset int) ([]*AuditRecord, int, error) {
	if offset >= len(m.records) {
		return nil, len(m.records), nil
	}
	end := offset + limit
	if end > len(m.records) {
		end = len(m.records)
	}
	return m.records[offset:end], len(m.records), nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   []string
	categories int
	forbidden  map[string]int
}

func (m *recordingMetrics) ObserveNormalization(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) ObserveCategory(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories++
}

func (m *recordingMetrics) ForbiddenFound(stage string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forbidden == nil {
		m.forbidden = make(map[string]int)
	}
	m.forbidden[stage] += n
}

func newTestRegistry(t *testing.T, doc string) *Registry {
	t.Helper()
	r := NewRegistry(BytesSource{Name: "test", Data: []byte(doc), Format: FormatYAML}, LoadOptions{}, zerolog.Nop())
	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	return r
}

func newTestService(t *testing.T, cfg ServiceConfig, opts ...ServiceOption) *Service {
	t.Helper()
	return NewService(newTestRegistry(t, testCatalogYAML), cfg, opts...)
}

func TestService_Normalize(t *testing.T) {
	metrics := &recordingMetrics{}
	svc := newTestService(t, ServiceConfig{}, WithMetrics(metrics))

	res, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "エコーで無念"})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if res.FormattedText != "超音波検査で無念" || len(res.Errors) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != OutcomeFindings {
		t.Errorf("expected findings outcome, got %v", metrics.outcomes)
	}
	if metrics.categories != len(CategoryOrder()) {
		t.Errorf("expected one observation per category, got %d", metrics.categories)
	}
	if metrics.forbidden["input"] != 1 {
		t.Errorf("expected one input finding, got %v", metrics.forbidden)
	}

	if _, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "経過良好"}); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if metrics.outcomes[1] != OutcomeOK {
		t.Errorf("expected ok outcome, got %v", metrics.outcomes)
	}
}

func TestService_InputLimit(t *testing.T) {
	metrics := &recordingMetrics{}
	svc := newTestService(t, ServiceConfig{MaxInputChars: 5}, WithMetrics(metrics))

	// Five multi-byte characters are within the limit.
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "あいうえお"}); err != nil {
		t.Errorf("expected rune-counted limit, got %v", err)
	}
	_, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "あいうえおか"})
	if !errors.Is(err, ErrInputTooLong) {
		t.Errorf("expected ErrInputTooLong, got %v", err)
	}
	if metrics.outcomes[len(metrics.outcomes)-1] != OutcomeRejected {
		t.Errorf("expected rejected outcome, got %v", metrics.outcomes)
	}
	if _, err := svc.ScanForbidden(context.Background(), "あいうえおか"); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("expected ErrInputTooLong from scan, got %v", err)
	}
	if _, err := svc.NormalizeSymbols("あいうえおか"); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("expected ErrInputTooLong from symbols, got %v", err)
	}
}

func TestService_DefaultInputLimit(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{Text: strings.Repeat("a", DefaultMaxInputChars+1)}); !errors.Is(err, ErrInputTooLong) {
		t.Errorf("expected default limit to apply, got %v", err)
	}
}

func TestService_NotLoaded(t *testing.T) {
	svc := NewService(NewRegistry(nil, LoadOptions{}, zerolog.Nop()), ServiceConfig{})
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "x"}); !errors.Is(err, ErrCatalogNotLoaded) {
		t.Errorf("expected ErrCatalogNotLoaded, got %v", err)
	}
	if _, err := svc.CatalogInfo(context.Background()); !errors.Is(err, ErrCatalogNotLoaded) {
		t.Errorf("expected ErrCatalogNotLoaded, got %v", err)
	}
}

func TestService_Audit(t *testing.T) {
	audit := &mockAuditRepo{}
	svc := newTestService(t, ServiceConfig{Audit: true}, WithAuditRepository(audit))

	_, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "エコー", RequestID: "req-1", UserID: "u-1"})
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(audit.records))
	}
	rec := audit.records[0]
	if rec.InputSHA256 != digest("エコー") || rec.OutputSHA256 != digest("超音波検査") {
		t.Errorf("unexpected digests %+v", rec)
	}
	if rec.InputChars != 3 || rec.CatalogVersion != "t-1" || rec.RequestID != "req-1" || rec.UserID != "u-1" {
		t.Errorf("unexpected record %+v", rec)
	}
	if strings.Contains(fmt.Sprintf("%+v", rec), "エコー") {
		t.Error("audit record must not contain the text")
	}

	items, total, err := svc.ListAudit(context.Background(), 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("unexpected audit listing %v %d %v", items, total, err)
	}
}

func TestService_AuditFailureDoesNotFailRequest(t *testing.T) {
	audit := &mockAuditRepo{err: errors.New("db down")}
	svc := newTestService(t, ServiceConfig{Audit: true}, WithAuditRepository(audit))
	if _, err := svc.Normalize(context.Background(), NormalizeRequest{Text: "エコー"}); err != nil {
		t.Errorf("expected audit failure to be swallowed, got %v", err)
	}
}

func TestService_AuditDisabled(t *testing.T) {
	audit := &mockAuditRepo{}
	svc := newTestService(t, ServiceConfig{}, WithAuditRepository(audit))
	svc.Normalize(context.Background(), NormalizeRequest{Text: "エコー"})
	if len(audit.records) != 0 {
		t.Errorf("expected no audit records, got %d", len(audit.records))
	}
}

func TestService_CheckAbbreviation(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	res, err := svc.CheckAbbreviation(context.Background(), "RSV陽性", "RSV")
	if err != nil {
		t.Fatalf("CheckAbbreviation() error: %v", err)
	}
	if !res.SpelledOut || !res.Whitelisted {
		t.Errorf("unexpected result %+v", res)
	}
	res, _ = svc.CheckAbbreviation(context.Background(), "MRSA陽性", "MRSA")
	if !res.SpelledOut || res.Whitelisted {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestService_StoreUnavailable(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	if _, err := svc.PublishCatalog(ctx, PublishRequest{Document: []byte("version: x\n")}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.ActivateCatalogVersion(ctx, "x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := svc.ListCatalogVersions(ctx, 10, 0); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := svc.ListAudit(ctx, 10, 0); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestService_PublishCatalog(t *testing.T) {
	repo := newMockVersionRepo()
	svc := newTestService(t, ServiceConfig{}, WithVersionRepository(repo))
	ctx := context.Background()
	doc := []byte("version: p-1\ndescription: published\ntest-name:\n  rules: [{pattern: A, replacement: B}]\n")

	v, err := svc.PublishCatalog(ctx, PublishRequest{Document: doc, CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("PublishCatalog() error: %v", err)
	}
	if v.Version != "p-1" || v.RuleCount != 1 || v.Checksum != Checksum(doc) || v.Format != FormatYAML || v.Active {
		t.Errorf("unexpected stored version %+v", v)
	}

	if _, err := svc.PublishCatalog(ctx, PublishRequest{Document: doc}); !errors.Is(err, ErrVersionExists) {
		t.Errorf("expected ErrVersionExists, got %v", err)
	}

	bad := []byte("test-name:\n  rules: [{pattern: '(', replacement: x, regex: true}]\n")
	_, err = svc.PublishCatalog(ctx, PublishRequest{Document: bad})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}

	// The registry reads from bytes, so activation must not replace it.
	if _, err := svc.ActivateCatalogVersion(ctx, "p-1"); err != nil {
		t.Fatalf("ActivateCatalogVersion() error: %v", err)
	}
	if cur, _ := svc.Registry().Current(); cur.Version() != "t-1" {
		t.Errorf("expected bytes-backed registry untouched, got %s", cur.Version())
	}
	if _, err := svc.ActivateCatalogVersion(ctx, "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Errorf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestService_PublishAndActivate_DatabaseSource(t *testing.T) {
	repo := newMockVersionRepo()
	registry := NewRegistry(DatabaseSource{Repo: repo}, LoadOptions{}, zerolog.Nop())
	svc := NewService(registry, ServiceConfig{}, WithVersionRepository(repo))
	ctx := context.Background()

	v1, err := svc.PublishCatalog(ctx, PublishRequest{Document: []byte("version: d-1\n"), Activate: true})
	if err != nil {
		t.Fatalf("PublishCatalog() error: %v", err)
	}
	if !v1.Active {
		t.Error("expected version to be active")
	}
	if cur, err := registry.Current(); err != nil || cur.Version() != "d-1" {
		t.Fatalf("expected d-1 published, got %v %v", cur, err)
	}

	doc2 := []byte(`{"version":"d-2","test-name":{"rules":[{"pattern":"A","replacement":"B"}]}}`)
	if _, err := svc.PublishCatalog(ctx, PublishRequest{Document: doc2, Format: FormatJSON}); err != nil {
		t.Fatalf("PublishCatalog() error: %v", err)
	}
	if cur, _ := registry.Current(); cur.Version() != "d-1" {
		t.Errorf("inactive publish must not swap the catalog, got %s", cur.Version())
	}

	if _, err := svc.ActivateCatalogVersion(ctx, "d-2"); err != nil {
		t.Fatalf("ActivateCatalogVersion() error: %v", err)
	}
	cur, _ := registry.Current()
	if cur.Version() != "d-2" || cur.TotalRules() != 1 {
		t.Errorf("expected d-2 published, got %s", cur.Version())
	}
	active, _ := repo.GetActive(ctx)
	if active.Version != "d-2" {
		t.Errorf("expected d-2 active in the store, got %s", active.Version)
	}

	items, total, err := svc.ListCatalogVersions(ctx, 10, 0)
	if err != nil || total != 2 || len(items) != 2 {
		t.Errorf("unexpected listing %v %d %v", items, total, err)
	}
}

func TestService_Reload(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	info, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if info.Version != "t-1" || info.TotalRules != 3 {
		t.Errorf("unexpected info %+v", info)
	}
}
