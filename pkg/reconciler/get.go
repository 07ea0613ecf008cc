package reconciler

import (
	"context"

	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/store"
)

// tickGet pulls upstream inventory into the resources/roadms/xconns buffers.
// A transport error is logged and the machine stays in get so the next tick
// retries. If nothing was discovered it also stays in get: a destructive
// update must never run against an empty fetch.
func (r *Reconciler) tickGet(ctx context.Context) {
	types, err := r.cc.GetResourceTypes(ctx)
	if err != nil {
		r.logger.Warn("reconciler get: listing resource types", "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
		return
	}

	var resources []store.InventoryResource
	for _, t := range types {
		names, err := r.cc.ListResourcesByType(ctx, t)
		if err != nil {
			r.logger.Warn("reconciler get: listing resources by type", "type", t, "error", err)
			telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
			return
		}
		for _, n := range names {
			resources = append(resources, store.InventoryResource{Type: t, Name: n})
		}
	}

	var roadms []store.InventoryRoadm
	var xconns []store.InventoryXConn
	for _, res := range resources {
		endpoints, err := r.cc.GetEndPoints(ctx, res.Type, res.Name)
		if err != nil {
			r.logger.Warn("reconciler get: listing endpoints", "resource", res.Name, "error", err)
			telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
			return
		}
		for _, ep := range endpoints {
			labels, err := r.cc.GetLabels(ctx, res.Type, res.Name, ep)
			if err != nil {
				r.logger.Warn("reconciler get: listing labels", "resource", res.Name, "endpoint", ep, "error", err)
				telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
				return
			}
			for _, label := range labels {
				roadms = append(roadms, store.InventoryRoadm{Type: res.Type, Name: res.Name, Endpoint: ep, Label: label})
			}
		}

		instanceIDs, err := r.cc.ListXConnects(ctx, res.Type, res.Name)
		if err != nil {
			r.logger.Warn("reconciler get: listing cross-connects", "resource", res.Name, "error", err)
			telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
			return
		}
		for _, xid := range instanceIDs {
			conn, ok, err := r.cc.GetXConnect(ctx, res.Type, res.Name, xid)
			if err != nil {
				r.logger.Warn("reconciler get: describing cross-connect", "resource", res.Name, "instance", xid, "error", err)
				telemetry.ReconcilerTicksTotal.WithLabelValues("get", "error").Inc()
				return
			}
			if !ok {
				// Malformed upstream XML: skip this one tuple, keep the rest.
				continue
			}
			xconns = append(xconns, store.InventoryXConn{
				Type: res.Type,
				Name: res.Name,
				Tuple: store.XConnTuple{
					SrcEndpoint: conn.SrcEndPointID,
					SrcLabel:    conn.SrcLabelID,
					DstEndpoint: conn.DstEndPointID,
					DstLabel:    conn.DstLabelID,
				},
			})
		}
	}

	if len(resources) == 0 && len(roadms) == 0 && len(xconns) == 0 {
		r.logger.Debug("reconciler get: upstream reported nothing, staying in get")
		telemetry.ReconcilerTicksTotal.WithLabelValues("get", "empty").Inc()
		return
	}

	r.resources = resources
	r.roadms = roadms
	r.xconns = xconns
	r.state = stateUpdate
	telemetry.ReconcilerTicksTotal.WithLabelValues("get", "ok").Inc()
}
