package terminology

import (
	"context"

	"github.com/google/uuid"
)

// CatalogVersionRepository stores catalog documents.
type CatalogVersionRepository interface {
	Create(ctx context.Context, v *CatalogVersion) error
	GetActive(ctx context.Context) (*CatalogVersion, error)
	GetByVersion(ctx context.Context, version string) (*CatalogVersion, error)
	List(ctx context.Context, limit, offset int) ([]*CatalogVersion, int, error)
	Activate(ctx context.Context, id uuid.UUID) error
}

// AuditRepository stores normalization audit records.
type AuditRepository interface {
	Create(ctx context.Context, r *AuditRecord) error
	List(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error)
}
