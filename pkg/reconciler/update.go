package reconciler

import (
	"context"

	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/store"
)

// takeBatch pulls up to n items off the end of buf, returning the batch and
// the remaining front of the slice.
func takeBatch[T any](buf []T, n int) (batch, rest []T) {
	if len(buf) <= n {
		return buf, nil
	}
	split := len(buf) - n
	return buf[split:], buf[:split]
}

// tickUpdate drains exactly one buffer per call, prioritizing resources,
// then roadms, then xconns, so parent rows always land before their
// dependents. The machine refuses to leave update while any buffer is
// non-empty, keeping each tick bounded by the configured step.
func (r *Reconciler) tickUpdate(ctx context.Context) {
	sess, err := r.store.OpenSession(ctx)
	if err != nil {
		r.logger.Error("reconciler update: opening session", "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("update", "error").Inc()
		return
	}
	defer sess.Close()

	var kind string
	var batchSize int
	var applyErr error
	switch {
	case len(r.resources) > 0:
		var batch []store.InventoryResource
		batch, r.resources = takeBatch(r.resources, r.updateStep)
		applyErr = sess.AuditResources(ctx, batch)
		kind, batchSize = "resources", len(batch)
	case len(r.roadms) > 0:
		var batch []store.InventoryRoadm
		batch, r.roadms = takeBatch(r.roadms, r.updateStep)
		applyErr = sess.AuditRoadms(ctx, batch)
		kind, batchSize = "roadms", len(batch)
	case len(r.xconns) > 0:
		var batch []store.InventoryXConn
		batch, r.xconns = takeBatch(r.xconns, r.updateStep)
		applyErr = sess.AuditConnections(ctx, batch)
		kind, batchSize = "xconns", len(batch)
	default:
		// Nothing left to drain; move straight to clean.
		r.state = stateClean
		return
	}

	if applyErr != nil {
		r.logger.Warn("reconciler update: applying audit batch", "kind", kind, "error", applyErr)
		telemetry.ReconcilerTicksTotal.WithLabelValues("update", "error").Inc()
		return
	}
	if err := sess.Commit(); err != nil {
		r.logger.Error("reconciler update: committing batch", "kind", kind, "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("update", "error").Inc()
		return
	}

	telemetry.ReconciledRowsTotal.WithLabelValues(kind).Add(float64(batchSize))
	telemetry.ReconcilerTicksTotal.WithLabelValues("update", "ok").Inc()

	if len(r.resources) == 0 && len(r.roadms) == 0 && len(r.xconns) == 0 {
		r.state = stateClean
		telemetry.ReconcilerCyclesTotal.Inc()
	}
}
