package store

import (
	"context"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

// AuditTerminated reaps every row whose audit_time is older than olderThan —
// the upstream controller stopped reporting it for a full reconciliation
// horizon — then promotes every Endpoint still left in AUDIT_TRANS to FREE,
// making the fresh survivors reservable. It returns the names of the reaped
// resources so the caller can alert an operator.
func (sess *Session) AuditTerminated(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT name FROM resources WHERE audit_time < ?`,
		olderThan,
	)
	if err != nil {
		return nil, domainerr.ONS("listing terminated resources", err)
	}
	var reaped []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, domainerr.ONS("scanning terminated resource", err)
		}
		reaped = append(reaped, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, domainerr.ONS("iterating terminated resources", err)
	}
	rows.Close()

	if _, err := sess.tx.ExecContext(ctx,
		`DELETE FROM resources WHERE audit_time < ?`,
		olderThan,
	); err != nil {
		return nil, domainerr.ONS("deleting terminated resources", err)
	}
	if _, err := sess.tx.ExecContext(ctx,
		`DELETE FROM roadms WHERE audit_time < ?`,
		olderThan,
	); err != nil {
		return nil, domainerr.ONS("deleting terminated roadms", err)
	}
	// Endpoints held by a connection about to be reaped go back to FREE so
	// they do not stay ALLOCATED with no owning connection.
	if _, err := sess.tx.ExecContext(ctx,
		`UPDATE roadms SET allocation = ?, operational = ?
		 WHERE id IN (SELECT ingress_id FROM connections WHERE audit_time < ?)
		    OR id IN (SELECT egress_id FROM connections WHERE audit_time < ?)`,
		AllocationFree, OperationalReady, olderThan, olderThan,
	); err != nil {
		return nil, domainerr.ONS("releasing endpoints of terminated connections", err)
	}
	if _, err := sess.tx.ExecContext(ctx,
		`DELETE FROM connections WHERE audit_time < ?`,
		olderThan,
	); err != nil {
		return nil, domainerr.ONS("deleting terminated connections", err)
	}

	if err := sess.promoteAuditTransToFree(ctx); err != nil {
		return nil, err
	}

	return reaped, nil
}
