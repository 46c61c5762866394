package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medterm/medterm/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// =========== Catalog Version Repository ===========

type catalogVersionRepoPG struct{ pool *pgxpool.Pool }

func NewCatalogVersionRepoPG(pool *pgxpool.Pool) CatalogVersionRepository {
	return &catalogVersionRepoPG{pool: pool}
}

func (r *catalogVersionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const catalogVersionColumns = `id, version, COALESCE(description,''), format, document, checksum,
	rule_count, active, COALESCE(created_by,''), created_at`

func scanCatalogVersion(row pgx.Row) (*CatalogVersion, error) {
	var v CatalogVersion
	err := row.Scan(&v.ID, &v.Version, &v.Description, &v.Format, &v.Document, &v.Checksum,
		&v.RuleCount, &v.Active, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *catalogVersionRepoPG) Create(ctx context.Context, v *CatalogVersion) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO rule_catalog_versions
		   (id, version, description, format, document, checksum, rule_count, active, created_by)
		 VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7, FALSE, NULLIF($8,''))
		 RETURNING created_at`,
		v.ID, v.Version, v.Description, v.Format, v.Document, v.Checksum, v.RuleCount, v.CreatedBy).
		Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("catalog version create: %w", err)
	}
	v.Active = false
	return nil
}

func (r *catalogVersionRepoPG) GetActive(ctx context.Context) (*CatalogVersion, error) {
	v, err := scanCatalogVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+catalogVersionColumns+` FROM rule_catalog_versions WHERE active LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCatalogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog version get active: %w", err)
	}
	return v, nil
}

func (r *catalogVersionRepoPG) GetByVersion(ctx context.Context, version string) (*CatalogVersion, error) {
	v, err := scanCatalogVersion(r.conn(ctx).QueryRow(ctx,
		`SELECT `+catalogVersionColumns+` FROM rule_catalog_versions WHERE version = $1`, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCatalogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog version get: %w", err)
	}
	return v, nil
}

func (r *catalogVersionRepoPG) List(ctx context.Context, limit, offset int) ([]*CatalogVersion, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM rule_catalog_versions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog version count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+catalogVersionColumns+` FROM rule_catalog_versions
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog version list: %w", err)
	}
	defer rows.Close()

	var out []*CatalogVersion
	for rows.Next() {
		v, err := scanCatalogVersion(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Activate makes id the only active version. Both updates run in one
// transaction so readers never see zero or two active rows.
func (r *catalogVersionRepoPG) Activate(ctx context.Context, id uuid.UUID) error {
	activate := func(ctx context.Context) error {
		q := r.conn(ctx)
		var found uuid.UUID
		err := q.QueryRow(ctx,
			`SELECT id FROM rule_catalog_versions WHERE id = $1 FOR UPDATE`, id).Scan(&found)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCatalogNotFound
		}
		if err != nil {
			return fmt.Errorf("catalog version activate: %w", err)
		}
		if _, err := q.Exec(ctx, `UPDATE rule_catalog_versions SET active = FALSE WHERE active AND id <> $1`, id); err != nil {
			return fmt.Errorf("catalog version deactivate: %w", err)
		}
		if _, err := q.Exec(ctx, `UPDATE rule_catalog_versions SET active = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("catalog version activate: %w", err)
		}
		return nil
	}
	if db.TxFromContext(ctx) != nil {
		return activate(ctx)
	}
	return db.InTx(ctx, r.pool, activate)
}

// =========== Audit Repository ===========

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *auditRepoPG) Create(ctx context.Context, rec *AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO normalization_audit
		   (id, catalog_version, input_sha256, output_sha256, input_chars,
		    error_count, warning_count, duration_us, request_id, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9,''), NULLIF($10,''))
		 RETURNING created_at`,
		rec.ID, rec.CatalogVersion, rec.InputSHA256, rec.OutputSHA256, rec.InputChars,
		rec.ErrorCount, rec.WarningCount, rec.DurationMicros, rec.RequestID, rec.UserID).
		Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit create: %w", err)
	}
	return nil
}

func (r *auditRepoPG) List(ctx context.Context, limit, offset int) ([]*AuditRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM normalization_audit`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, catalog_version, input_sha256, output_sha256, input_chars,
		        error_count, warning_count, duration_us, COALESCE(request_id,''), COALESCE(user_id,''), created_at
		 FROM normalization_audit ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []*AuditRecord
	for rows.Next() {
		var a AuditRecord
		if err := rows.Scan(&a.ID, &a.CatalogVersion, &a.InputSHA256, &a.OutputSHA256, &a.InputChars,
			&a.ErrorCount, &a.WarningCount, &a.DurationMicros, &a.RequestID, &a.UserID, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &a)
	}
	return out, total, rows.Err()
}
