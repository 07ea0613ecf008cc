// Package reconciler implements the three-state inventory reconciliation
// machine: get pulls upstream inventory into transient buffers, update
// drains them into the Store in fixed-size quanta, clean reaps stale rows.
// It advances one step per call to Tick, so no single step holds a worker
// for the span of a full sweep.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennaas/roadm-am/internal/platform"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/store"
)

// state is one of the three reconciliation states.
type state int

const (
	stateGet state = iota
	stateUpdate
	stateClean
)

func (s state) String() string {
	switch s {
	case stateGet:
		return "get"
	case stateUpdate:
		return "update"
	case stateClean:
		return "clean"
	default:
		return "unknown"
	}
}

// Alerter receives notifications of events an operator should know about.
// A nil Alerter disables notification.
type Alerter interface {
	NotifyResourcesReaped(ctx context.Context, names []string)
}

const lockKey = "roadmam:reconciler:cycle-lock"

// Reconciler holds the machine's current state and its cross-tick drain
// buffers. It is driven by a single background worker; no external caller
// mutates the buffers concurrently.
type Reconciler struct {
	store  *store.Store
	cc     *controllerclient.Client
	logger *slog.Logger
	rdb    *redis.Client
	alerts Alerter

	updateStep   int
	auditHorizon time.Duration
	lockTTL      time.Duration

	state     state
	resources []store.InventoryResource
	roadms    []store.InventoryRoadm
	xconns    []store.InventoryXConn
}

// New builds a Reconciler starting in the get state.
func New(s *store.Store, cc *controllerclient.Client, logger *slog.Logger, rdb *redis.Client, alerts Alerter, updateStep int, auditHorizon, lockTTL time.Duration) *Reconciler {
	return &Reconciler{
		store:        s,
		cc:           cc,
		logger:       logger,
		rdb:          rdb,
		alerts:       alerts,
		updateStep:   updateStep,
		auditHorizon: auditHorizon,
		lockTTL:      lockTTL,
		state:        stateGet,
	}
}

// Tick advances the FSM by one step. It is safe to call repeatedly from a
// single recurring timer; if another AM instance currently holds the cycle
// lock, this call is a no-op.
func (r *Reconciler) Tick(ctx context.Context) {
	locked, err := platform.TryLock(ctx, r.rdb, lockKey, r.lockTTL)
	if err != nil {
		r.logger.Error("acquiring reconciler cycle lock", "error", err)
		return
	}
	if !locked {
		return
	}
	defer platform.Unlock(ctx, r.rdb, lockKey)

	before := r.state
	switch r.state {
	case stateGet:
		r.tickGet(ctx)
	case stateUpdate:
		r.tickUpdate(ctx)
	case stateClean:
		r.tickClean(ctx)
	}
	r.logger.Debug("reconciler tick", "from", before, "to", r.state)
}
