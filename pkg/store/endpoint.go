package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

// EndpointKey identifies an Endpoint within a Resource by (endpoint, label).
type EndpointKey struct {
	Endpoint string
	Label    string
}

// getEndpoint resolves an Endpoint row by resource + (endpoint, label).
func getEndpoint(ctx context.Context, tx *sql.Tx, resourceID int64, key EndpointKey) (Endpoint, error) {
	var e Endpoint
	var alloc, oper string
	err := tx.QueryRowContext(ctx,
		`SELECT id, resource_id, endpoint, label, allocation, operational, audit_time
		 FROM roadms WHERE resource_id = ? AND endpoint = ? AND label = ?`,
		resourceID, key.Endpoint, key.Label,
	).Scan(&e.ID, &e.ResourceID, &e.Endpoint, &e.Label, &alloc, &oper, &e.AuditTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Endpoint{}, domainerr.NotFound("endpoint %s/%s", key.Endpoint, key.Label)
	}
	if err != nil {
		return Endpoint{}, domainerr.ONS("resolving endpoint", err)
	}
	e.Allocation = Allocation(alloc)
	e.Operational = Operational(oper)
	return e, nil
}

// CheckToReserve resolves the named resource and both endpoints, requiring
// both to be FREE, and computes the deterministic xconn_id OpenNaaS will use
// to identify the cross-connect.
func (sess *Session) CheckToReserve(ctx context.Context, resourceKey ResourceKey, inEp, inLabel, outEp, outLabel string) (ingressID, egressID int64, xconnID string, err error) {
	resourceID, err := getResourceID(ctx, sess.tx, resourceKey)
	if err != nil {
		return 0, 0, "", err
	}

	ingress, err := getEndpoint(ctx, sess.tx, resourceID, EndpointKey{Endpoint: inEp, Label: inLabel})
	if err != nil {
		return 0, 0, "", err
	}
	egress, err := getEndpoint(ctx, sess.tx, resourceID, EndpointKey{Endpoint: outEp, Label: outLabel})
	if err != nil {
		return 0, 0, "", err
	}

	if ingress.Allocation != AllocationFree {
		return 0, 0, "", domainerr.NotAvailable("endpoint %s/%s is not FREE", inEp, inLabel)
	}
	if egress.Allocation != AllocationFree {
		return 0, 0, "", domainerr.NotAvailable("endpoint %s/%s is not FREE", outEp, outLabel)
	}

	xconnID = XConnID(ingress.Endpoint, ingress.Label, egress.Endpoint, egress.Label)
	return ingress.ID, egress.ID, xconnID, nil
}

// AuditRoadms upserts a batch of (type, name, endpoint, label) observations
// against their parent Resource, which must already have been audited in
// this cycle: resources always drain before roadms.
func (sess *Session) AuditRoadms(ctx context.Context, batch []InventoryRoadm) error {
	now := time.Now().UTC()
	for _, r := range batch {
		resourceID, err := getResourceID(ctx, sess.tx, ResourceKey{Name: r.Name, Type: r.Type})
		if err != nil {
			return err
		}

		_, err = sess.tx.ExecContext(ctx,
			`INSERT INTO roadms (resource_id, endpoint, label, allocation, audit_time)
			 VALUES (?, ?, ?, ?, ?)`,
			resourceID, r.Endpoint, r.Label, AllocationAuditTrans, now,
		)
		if err == nil {
			continue
		}
		if !isUniqueViolation(err) {
			return domainerr.ONS("auditing roadm", err)
		}
		if _, err := sess.tx.ExecContext(ctx,
			`UPDATE roadms SET audit_time = ? WHERE resource_id = ? AND endpoint = ? AND label = ?`,
			now, resourceID, r.Endpoint, r.Label,
		); err != nil {
			return domainerr.ONS("bumping roadm audit_time", err)
		}
	}
	return nil
}

// GetResources returns the flattened view joining every Endpoint with its
// Resource and, for ALLOCATED endpoints, the owning Connection.
func (sess *Session) GetResources(ctx context.Context) ([]ResourceRow, error) {
	rows, err := sess.tx.QueryContext(ctx, `
		SELECT r.name, rm.endpoint, rm.label, r.type, rm.allocation, rm.operational,
		       c.slice_urn, c.end_time
		FROM roadms rm
		JOIN resources r ON r.id = rm.resource_id
		LEFT JOIN connections c ON c.ingress_id = rm.id OR c.egress_id = rm.id
		ORDER BY r.name, rm.endpoint, rm.label
	`)
	if err != nil {
		return nil, domainerr.ONS("listing resources", err)
	}
	defer rows.Close()

	var out []ResourceRow
	for rows.Next() {
		var rr ResourceRow
		var alloc, oper string
		var sliceURN sql.NullString
		var endTime sql.NullTime
		if err := rows.Scan(&rr.ResourceName, &rr.Endpoint, &rr.Label, &rr.ResourceType,
			&alloc, &oper, &sliceURN, &endTime); err != nil {
			return nil, domainerr.ONS("scanning resource row", err)
		}
		rr.Allocation = Allocation(alloc)
		rr.Operational = Operational(oper)
		if sliceURN.Valid {
			v := sliceURN.String
			rr.SliceURN = &v
		}
		if endTime.Valid {
			v := endTime.Time
			rr.EndTime = &v
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.ONS("iterating resource rows", err)
	}
	return out, nil
}

// promoteAuditTransToFree flips every endpoint still in AUDIT_TRANS to FREE.
// Called by AuditTerminated once stale rows have been reaped.
func (sess *Session) promoteAuditTransToFree(ctx context.Context) error {
	_, err := sess.tx.ExecContext(ctx,
		`UPDATE roadms SET allocation = ? WHERE allocation = ?`,
		AllocationFree, AllocationAuditTrans,
	)
	if err != nil {
		return domainerr.ONS("promoting audit-trans endpoints to free", err)
	}
	return nil
}
