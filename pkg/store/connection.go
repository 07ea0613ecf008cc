package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

// MakeConnection inserts the Connection row and marks both endpoints
// ALLOCATED, atomically within the session.
func (sess *Session) MakeConnection(ctx context.Context, ingressID, egressID int64, xconnID, sliceURN string, endTime time.Time, client ClientInfo) error {
	now := time.Now().UTC()
	_, err := sess.tx.ExecContext(ctx,
		`INSERT INTO connections (ingress_id, egress_id, xconn_id, slice_urn, end_time,
		                          client_name, client_id, client_email, operational, audit_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ingressID, egressID, xconnID, sliceURN, endTime,
		client.Name, client.ID, client.Email, OperationalReady, now,
	)
	if err != nil {
		return domainerr.ONS("creating connection", err)
	}

	if _, err := sess.tx.ExecContext(ctx,
		`UPDATE roadms SET allocation = ? WHERE id IN (?, ?)`,
		AllocationAllocated, ingressID, egressID,
	); err != nil {
		return domainerr.ONS("allocating endpoints", err)
	}
	return nil
}

// endpointView scans one side of a slice connection joined with its Resource.
func endpointView(ctx context.Context, tx *sql.Tx, endpointID int64) (EndpointView, error) {
	var v EndpointView
	var alloc, oper string
	err := tx.QueryRowContext(ctx, `
		SELECT rm.id, rm.endpoint, rm.label, rm.allocation, rm.operational, r.name, r.type
		FROM roadms rm JOIN resources r ON r.id = rm.resource_id
		WHERE rm.id = ?
	`, endpointID).Scan(&v.EndpointID, &v.Endpoint, &v.Label, &alloc, &oper, &v.ResourceName, &v.ResourceType)
	if errors.Is(err, sql.ErrNoRows) {
		return EndpointView{}, domainerr.NotFound("endpoint id %d", endpointID)
	}
	if err != nil {
		return EndpointView{}, domainerr.ONS("resolving endpoint view", err)
	}
	v.Allocation = Allocation(alloc)
	v.Operational = Operational(oper)
	return v, nil
}

func scanConnection(rows interface {
	Scan(dest ...any) error
}) (Connection, error) {
	var c Connection
	var oper string
	err := rows.Scan(&c.ID, &c.IngressID, &c.EgressID, &c.XConnID, &c.SliceURN, &c.EndTime,
		&c.ClientName, &c.ClientID, &c.ClientEmail, &oper, &c.AuditTime)
	c.Operational = Operational(oper)
	return c, err
}

const connectionColumns = `id, ingress_id, egress_id, xconn_id, slice_urn, end_time,
	client_name, client_id, client_email, operational, audit_time`

// GetSlice returns every Connection belonging to sliceURN, each paired with
// its ingress and egress endpoint views.
func (sess *Session) GetSlice(ctx context.Context, sliceURN string) ([]SliceConnection, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE slice_urn = ? ORDER BY id`,
		sliceURN,
	)
	if err != nil {
		return nil, domainerr.ONS("listing slice connections", err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, domainerr.ONS("scanning slice connection", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.ONS("iterating slice connections", err)
	}

	out := make([]SliceConnection, 0, len(conns))
	for _, c := range conns {
		ingress, err := endpointView(ctx, sess.tx, c.IngressID)
		if err != nil {
			return nil, err
		}
		egress, err := endpointView(ctx, sess.tx, c.EgressID)
		if err != nil {
			return nil, err
		}
		out = append(out, SliceConnection{Ingress: ingress, Egress: egress, Connection: c})
	}
	return out, nil
}

// GetConnectionByEndpoints resolves the Connection owning the given ingress
// and egress endpoint ids.
func (sess *Session) GetConnectionByEndpoints(ctx context.Context, ingressID, egressID int64) (Connection, error) {
	row := sess.tx.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE ingress_id = ? AND egress_id = ?`,
		ingressID, egressID,
	)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, domainerr.NotFound("connection for endpoints %d/%d", ingressID, egressID)
	}
	if err != nil {
		return Connection{}, domainerr.ONS("resolving connection", err)
	}
	return c, nil
}

// GetExpiredConnections returns every Connection whose end_time precedes
// before, paired with its ingress/egress endpoint views, for the ticker's
// expiration sweep.
func (sess *Session) GetExpiredConnections(ctx context.Context, before time.Time) ([]SliceConnection, error) {
	rows, err := sess.tx.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE end_time < ? ORDER BY id`,
		before,
	)
	if err != nil {
		return nil, domainerr.ONS("listing expired connections", err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, domainerr.ONS("scanning expired connection", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.ONS("iterating expired connections", err)
	}

	out := make([]SliceConnection, 0, len(conns))
	for _, c := range conns {
		ingress, err := endpointView(ctx, sess.tx, c.IngressID)
		if err != nil {
			return nil, err
		}
		egress, err := endpointView(ctx, sess.tx, c.EgressID)
		if err != nil {
			return nil, err
		}
		out = append(out, SliceConnection{Ingress: ingress, Egress: egress, Connection: c})
	}
	return out, nil
}

// RenewSlice updates every Connection in a slice with a new end_time and
// refreshed client identity fields.
func (sess *Session) RenewSlice(ctx context.Context, sliceURN string, endTime time.Time, client ClientInfo) (int64, error) {
	res, err := sess.tx.ExecContext(ctx,
		`UPDATE connections SET end_time = ?, client_name = ?, client_id = ?, client_email = ?
		 WHERE slice_urn = ?`,
		endTime, client.Name, client.ID, client.Email, sliceURN,
	)
	if err != nil {
		return 0, domainerr.ONS("renewing slice", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domainerr.ONS("counting renewed connections", err)
	}
	if n == 0 {
		return 0, domainerr.NotFound("slice %s", sliceURN)
	}
	return n, nil
}

// OperConnection updates the operational state on both endpoints and the
// connection that owns them.
func (sess *Session) OperConnection(ctx context.Context, ingressID, egressID int64, state Operational) error {
	if _, err := sess.tx.ExecContext(ctx,
		`UPDATE roadms SET operational = ? WHERE id IN (?, ?)`,
		state, ingressID, egressID,
	); err != nil {
		return domainerr.ONS("updating endpoint operational state", err)
	}
	if _, err := sess.tx.ExecContext(ctx,
		`UPDATE connections SET operational = ? WHERE ingress_id = ? AND egress_id = ?`,
		state, ingressID, egressID,
	); err != nil {
		return domainerr.ONS("updating connection operational state", err)
	}
	return nil
}

// DestroyConnection deletes the Connection row and releases both endpoints
// back to FREE.
func (sess *Session) DestroyConnection(ctx context.Context, ingressID, egressID int64) error {
	res, err := sess.tx.ExecContext(ctx,
		`DELETE FROM connections WHERE ingress_id = ? AND egress_id = ?`,
		ingressID, egressID,
	)
	if err != nil {
		return domainerr.ONS("destroying connection", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domainerr.ONS("counting destroyed connections", err)
	}
	if n == 0 {
		return domainerr.NotFound("connection for endpoints %d/%d", ingressID, egressID)
	}

	if _, err := sess.tx.ExecContext(ctx,
		`UPDATE roadms SET allocation = ?, operational = ? WHERE id IN (?, ?)`,
		AllocationFree, OperationalReady, ingressID, egressID,
	); err != nil {
		return domainerr.ONS("releasing endpoints", err)
	}
	return nil
}

// AuditConnections upserts a batch of device-reported active cross-connects.
// A freshly-inserted connection promotes both of its endpoints from
// AUDIT_TRANS to ALLOCATED immediately; an already-known connection just has
// its audit_time bumped.
func (sess *Session) AuditConnections(ctx context.Context, batch []InventoryXConn) error {
	now := time.Now().UTC()
	// Discovered cross-connects are not GENI reservations, so they carry no
	// slice and an effectively unbounded end_time; audit_terminated, not
	// end_time expiry, is what reclaims them once the device stops
	// reporting them.
	farFuture := now.AddDate(100, 0, 0)

	for _, x := range batch {
		resourceID, err := getResourceID(ctx, sess.tx, ResourceKey{Name: x.Name, Type: x.Type})
		if err != nil {
			return err
		}
		ingress, err := getEndpoint(ctx, sess.tx, resourceID, EndpointKey{Endpoint: x.Tuple.SrcEndpoint, Label: x.Tuple.SrcLabel})
		if err != nil {
			return err
		}
		egress, err := getEndpoint(ctx, sess.tx, resourceID, EndpointKey{Endpoint: x.Tuple.DstEndpoint, Label: x.Tuple.DstLabel})
		if err != nil {
			return err
		}

		xconnID := XConnID(ingress.Endpoint, ingress.Label, egress.Endpoint, egress.Label)

		_, err = sess.tx.ExecContext(ctx,
			`INSERT INTO connections (ingress_id, egress_id, xconn_id, slice_urn, end_time, operational, audit_time)
			 VALUES (?, ?, ?, '', ?, ?, ?)`,
			ingress.ID, egress.ID, xconnID, farFuture, OperationalReady, now,
		)
		if err == nil {
			if _, err := sess.tx.ExecContext(ctx,
				`UPDATE roadms SET allocation = ? WHERE id IN (?, ?) AND allocation = ?`,
				AllocationAllocated, ingress.ID, egress.ID, AllocationAuditTrans,
			); err != nil {
				return domainerr.ONS("allocating device-reported endpoints", err)
			}
			continue
		}
		if !isUniqueViolation(err) {
			return domainerr.ONS("auditing connection", err)
		}
		if _, err := sess.tx.ExecContext(ctx,
			`UPDATE connections SET audit_time = ? WHERE ingress_id = ? OR egress_id = ?`,
			now, ingress.ID, egress.ID,
		); err != nil {
			return domainerr.ONS("bumping connection audit_time", err)
		}
	}
	return nil
}
