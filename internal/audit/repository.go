package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultTable = "audit_logs"

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository writes audit logs.
type Repository struct {
	db    Execer
	table string
	now   func() time.Time
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTable overrides the audit table.
func WithTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs an audit repository.
func NewRepository(db Execer, opts ...RepositoryOption) *Repository {
	if db == nil {
		return nil
	}
	r := &Repository{db: db, table: defaultTable, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// prepare fills the generated fields of entry.
func (r *Repository) prepare(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = r.prepare(entry)

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, office_id, actor, role, action, resource_type, resource_id, project_id,
	change_kind, window_start, window_end, change_count,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.OfficeID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.ProjectID,
		entry.ChangeKind, entry.WindowStart, entry.WindowEnd, entry.ChangeCount,
		entry.Metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}
