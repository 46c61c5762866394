package terminology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// AuditRecord is the trace of one normalization. Only digests of the texts
// are kept.
type AuditRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	CatalogVersion string    `db:"catalog_version" json:"catalog_version"`
	InputSHA256    string    `db:"input_sha256" json:"input_sha256"`
	OutputSHA256   string    `db:"output_sha256" json:"output_sha256"`
	InputChars     int       `db:"input_chars" json:"input_chars"`
	ErrorCount     int       `db:"error_count" json:"error_count"`
	WarningCount   int       `db:"warning_count" json:"warning_count"`
	DurationMicros int64     `db:"duration_us" json:"duration_us"`
	RequestID      string    `db:"request_id" json:"request_id,omitempty"`
	UserID         string    `db:"user_id" json:"user_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func newAuditRecord(req NormalizeRequest, res *Result, elapsed time.Duration) *AuditRecord {
	return &AuditRecord{
		CatalogVersion: res.CatalogVersion,
		InputSHA256:    digest(req.Text),
		OutputSHA256:   digest(res.FormattedText),
		InputChars:     utf8.RuneCountInString(req.Text),
		ErrorCount:     len(res.Errors),
		WarningCount:   len(res.Warnings),
		DurationMicros: elapsed.Microseconds(),
		RequestID:      req.RequestID,
		UserID:         req.UserID,
	}
}

// recordAudit persists an audit record. A storage failure is logged and does
// not fail the normalization.
func (s *Service) recordAudit(ctx context.Context, req NormalizeRequest, res *Result, elapsed time.Duration) {
	if err := s.audit.Create(ctx, newAuditRecord(req, res, elapsed)); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("write normalization audit record")
	}
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
