package terminology

import (
	"time"

	"github.com/google/uuid"
)

// CatalogVersion is a catalog document stored in the database. At most one
// version is active; the active one is what DatabaseSource loads.
type CatalogVersion struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Version     string    `db:"version" json:"version"`
	Description string    `db:"description" json:"description,omitempty"`
	Format      Format    `db:"format" json:"format"`
	Document    []byte    `db:"document" json:"-"`
	Checksum    string    `db:"checksum" json:"checksum"`
	RuleCount   int       `db:"rule_count" json:"rule_count"`
	Active      bool      `db:"active" json:"active"`
	CreatedBy   string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
