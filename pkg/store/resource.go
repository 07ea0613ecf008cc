package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure, the signal the audit upserts use to fall back from insert to
// an audit_time bump.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// ResourceKey identifies a Resource by its unique (name, type) pair.
type ResourceKey struct {
	Name string
	Type string
}

// getResourceID resolves a Resource by its (name, type) key.
func getResourceID(ctx context.Context, tx *sql.Tx, key ResourceKey) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE name = ? AND type = ?`,
		key.Name, key.Type,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domainerr.NotFound("resource %s/%s", key.Type, key.Name)
	}
	if err != nil {
		return 0, domainerr.ONS("resolving resource", err)
	}
	return id, nil
}

// AuditResources upserts a batch of (type, name) observations: each is
// inserted fresh, or has its audit_time bumped if it already exists.
func (sess *Session) AuditResources(ctx context.Context, batch []InventoryResource) error {
	now := time.Now().UTC()
	for _, r := range batch {
		_, err := sess.tx.ExecContext(ctx,
			`INSERT INTO resources (name, type, audit_time) VALUES (?, ?, ?)`,
			r.Name, r.Type, now,
		)
		if err == nil {
			continue
		}
		if !isUniqueViolation(err) {
			return domainerr.ONS("auditing resource", err)
		}
		if _, err := sess.tx.ExecContext(ctx,
			`UPDATE resources SET audit_time = ? WHERE name = ? AND type = ?`,
			now, r.Name, r.Type,
		); err != nil {
			return domainerr.ONS("bumping resource audit_time", err)
		}
	}
	return nil
}
