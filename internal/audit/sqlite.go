package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteSink appends events to the audit_logs table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a sink writing to db.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, e Event) error {
	var metadataJSON *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling audit metadata: %w", err)
		}
		m := string(b)
		metadataJSON = &m
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, tenant_id, subject_id, action, entity, entity_id, metadata, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nullableString(e.TenantID), nullableString(e.SubjectID),
		string(e.Action), e.Entity, nullableString(e.EntityID),
		metadataJSON, e.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so nullable TEXT columns
// store NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
