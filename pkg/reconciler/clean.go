package reconciler

import (
	"context"
	"time"

	"github.com/opennaas/roadm-am/internal/telemetry"
)

// tickClean clears the drain buffers (they should already be empty) and
// reaps rows not observed within the audit horizon, flipping the fresh
// survivors to FREE. A persistence error here is logged; the sweep is
// idempotent and the next clean tick retries it.
func (r *Reconciler) tickClean(ctx context.Context) {
	r.resources = nil
	r.roadms = nil
	r.xconns = nil

	sess, err := r.store.OpenSession(ctx)
	if err != nil {
		r.logger.Error("reconciler clean: opening session", "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("clean", "error").Inc()
		return
	}
	defer sess.Close()

	cutoff := time.Now().UTC().Add(-r.auditHorizon)
	reaped, err := sess.AuditTerminated(ctx, cutoff)
	if err != nil {
		r.logger.Warn("reconciler clean: audit_terminated", "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("clean", "error").Inc()
		return
	}
	if err := sess.Commit(); err != nil {
		r.logger.Error("reconciler clean: committing sweep", "error", err)
		telemetry.ReconcilerTicksTotal.WithLabelValues("clean", "error").Inc()
		return
	}

	if len(reaped) > 0 {
		r.logger.Info("reconciler clean: reaped stale resources", "count", len(reaped), "names", reaped)
		if r.alerts != nil {
			r.alerts.NotifyResourcesReaped(ctx, reaped)
		}
	}

	telemetry.ReconcilerTicksTotal.WithLabelValues("clean", "ok").Inc()
	r.state = stateGet
}
