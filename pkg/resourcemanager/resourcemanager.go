// Package resourcemanager implements the public façade the GENI delegate
// calls: reserve/query/renew/start/stop/delete. Queries and ReserveResources
// each run in exactly one Store session, so a partial reservation is never
// observable. StartSlices/StopSlices/DeleteSlices commit each connection's
// change in its own session before its upstream call, and ForceRenewResources
// commits each slice separately, so a failure part-way leaves the earlier
// connections or slices changed.
package resourcemanager

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennaas/roadm-am/internal/domainerr"
	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/store"
)

// Manager composes Store lifecycle transitions with upstream cross-connect
// activation on the OpenNaaS controller.
type Manager struct {
	store              *store.Store
	cc                 *controllerclient.Client
	logger             *slog.Logger
	rdb                *redis.Client
	alerts             Alerter
	reservationTimeout time.Duration
}

// New builds a Resource Manager without an Alerter; use WithAlerter to wire
// operator notification of persistent queue/execute failures.
func New(s *store.Store, cc *controllerclient.Client, logger *slog.Logger, rdb *redis.Client, reservationTimeout time.Duration) *Manager {
	return &Manager{store: s, cc: cc, logger: logger, rdb: rdb, reservationTimeout: reservationTimeout}
}

// WithAlerter returns m with its Alerter set, for wiring Slack notification
// after construction.
func (m *Manager) WithAlerter(alerts Alerter) *Manager {
	m.alerts = alerts
	return m
}

// ReserveSpec is one requested cross-connect: the target device plus the
// ingress and egress endpoint/label pairs to join.
type ReserveSpec struct {
	ResourceName string
	ResourceType string
	InEndpoint   string
	InLabel      string
	OutEndpoint  string
	OutLabel     string
}

// GetResources reads every Endpoint (with its Connection if allocated) and
// produces one GeniResource per row.
func (m *Manager) GetResources(ctx context.Context) ([]GeniResource, error) {
	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	rows, err := sess.GetResources(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}

	out := make([]GeniResource, 0, len(rows))
	for _, row := range rows {
		gr := GeniResource{
			URN:         CreateRoadmURN(row.ResourceName, row.Endpoint, row.Label),
			Type:        row.ResourceType,
			Allocation:  mapAllocation(row.Allocation),
			Operational: row.Operational,
		}
		if row.SliceURN != nil {
			gr.SliceURN = *row.SliceURN
		}
		gr.EndTime = row.EndTime
		out = append(out, gr)
	}
	return out, nil
}

// ReserveResources reserves a batch of cross-connects for a slice: each
// request is checked for availability, the effective end_time computed and
// validated, and every resulting connection made, all inside one session so
// a failure anywhere rolls back the whole reservation.
func (m *Manager) ReserveResources(ctx context.Context, specs []ReserveSpec, sliceURN string, endTime *time.Time, client store.ClientInfo) ([]GeniResource, error) {
	effectiveEnd := time.Now().Add(m.reservationTimeout)
	if endTime != nil {
		effectiveEnd = *endTime
	}
	if !effectiveEnd.After(time.Now()) {
		telemetry.ReservationsTotal.WithLabelValues("error").Inc()
		return nil, domainerr.ONS("reservation end_time must be in the future", nil)
	}

	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		telemetry.ReservationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	defer sess.Close()

	type triple struct {
		ingress, egress int64
		xconnID         string
		spec            ReserveSpec
	}
	triples := make([]triple, 0, len(specs))
	for _, spec := range specs {
		ingress, egress, xconnID, err := sess.CheckToReserve(ctx,
			store.ResourceKey{Name: spec.ResourceName, Type: spec.ResourceType},
			spec.InEndpoint, spec.InLabel, spec.OutEndpoint, spec.OutLabel)
		if err != nil {
			telemetry.ReservationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		triples = append(triples, triple{ingress: ingress, egress: egress, xconnID: xconnID, spec: spec})
	}

	out := make([]GeniResource, 0, len(triples)*2)
	for _, t := range triples {
		if err := sess.MakeConnection(ctx, t.ingress, t.egress, t.xconnID, sliceURN, effectiveEnd, client); err != nil {
			telemetry.ReservationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		out = append(out,
			GeniResource{
				URN:         CreateRoadmURN(t.spec.ResourceName, t.spec.InEndpoint, t.spec.InLabel),
				SliceURN:    sliceURN,
				EndTime:     &effectiveEnd,
				Type:        t.spec.ResourceType,
				Allocation:  GeniAllocated,
				Operational: store.OperationalReady,
			},
			GeniResource{
				URN:         CreateRoadmURN(t.spec.ResourceName, t.spec.OutEndpoint, t.spec.OutLabel),
				SliceURN:    sliceURN,
				EndTime:     &effectiveEnd,
				Type:        t.spec.ResourceType,
				Allocation:  GeniAllocated,
				Operational: store.OperationalReady,
			},
		)
	}

	if err := sess.Commit(); err != nil {
		telemetry.ReservationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	telemetry.ReservationsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

// GetSliceResources returns the detailed manifest for a slice: a paired
// in/out list with cross-linked peer urns in GeniRoadmDetails.
func (m *Manager) GetSliceResources(ctx context.Context, sliceURN string) ([]GeniResource, error) {
	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	conns, err := sess.GetSlice(ctx, sliceURN)
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}

	return detailedManifest(conns), nil
}

// detailedManifest expands each SliceConnection into its paired in/out
// GeniResource entries, each pointing at its peer's urn.
func detailedManifest(conns []store.SliceConnection) []GeniResource {
	out := make([]GeniResource, 0, len(conns)*2)
	for _, sc := range conns {
		inURN := CreateRoadmURN(sc.Ingress.ResourceName, sc.Ingress.Endpoint, sc.Ingress.Label)
		outURN := CreateRoadmURN(sc.Egress.ResourceName, sc.Egress.Endpoint, sc.Egress.Label)
		endTime := sc.Connection.EndTime

		out = append(out,
			GeniResource{
				URN:         inURN,
				SliceURN:    sc.Connection.SliceURN,
				EndTime:     &endTime,
				Type:        sc.Ingress.ResourceType,
				Allocation:  mapAllocation(sc.Ingress.Allocation),
				Operational: sc.Ingress.Operational,
				Details:     &GeniRoadmDetails{ConnectedInURN: inURN, ConnectedOutURN: outURN},
			},
			GeniResource{
				URN:         outURN,
				SliceURN:    sc.Connection.SliceURN,
				EndTime:     &endTime,
				Type:        sc.Egress.ResourceType,
				Allocation:  mapAllocation(sc.Egress.Allocation),
				Operational: sc.Egress.Operational,
				Details:     &GeniRoadmDetails{ConnectedInURN: inURN, ConnectedOutURN: outURN},
			},
		)
	}
	return out
}

// RenewResources is the strict renew variant. It is intentionally not
// implemented; callers use ForceRenewResources.
func (m *Manager) RenewResources(ctx context.Context, slices []string, endTime time.Time) ([]GeniResource, error) {
	return nil, domainerr.ONS("renew_resources (strict) is not implemented; use force_renew_resources", nil)
}

// ForceRenewResources iterates each slice, updates its end_time, and
// re-emits the detailed manifest. Best-effort: per-slice errors are logged
// and skipped.
func (m *Manager) ForceRenewResources(ctx context.Context, slices []string, endTime time.Time, client store.ClientInfo) []GeniResource {
	var out []GeniResource
	for _, sliceURN := range slices {
		if err := m.renewOneSlice(ctx, sliceURN, endTime, client); err != nil {
			m.logger.Warn("force_renew_resources: renewing slice", "slice", sliceURN, "error", err)
			continue
		}
		manifest, err := m.GetSliceResources(ctx, sliceURN)
		if err != nil {
			m.logger.Warn("force_renew_resources: fetching manifest", "slice", sliceURN, "error", err)
			continue
		}
		out = append(out, manifest...)
	}
	return out
}

func (m *Manager) renewOneSlice(ctx context.Context, sliceURN string, endTime time.Time, client store.ClientInfo) error {
	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := sess.RenewSlice(ctx, sliceURN, endTime, client); err != nil {
		return err
	}
	return sess.Commit()
}
