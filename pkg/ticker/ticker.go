// Package ticker drives the two recurring background tasks: update_resources
// (one reconciler step per firing) and check_resources_expiration (reaps
// expired Connections), multiplexed in a single select loop.
package ticker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opennaas/roadm-am/internal/platform"
	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/reconciler"
	"github.com/opennaas/roadm-am/pkg/store"
)

// device identifies one OpenNaaS-managed resource, used to deduplicate
// queue/execute calls across connections that share it during a sweep.
type device struct {
	resourceType string
	resourceName string
}

func (d device) lockKey() string {
	return fmt.Sprintf("roadmam:queue-execute:%s:%s", d.resourceType, d.resourceName)
}

const queueExecuteLockTTL = 10 * time.Second

// Alerter receives notification of a persistent queue/execute failure during
// an expiration sweep. A nil Alerter disables notification.
type Alerter interface {
	NotifyQueueExecuteError(ctx context.Context, resourceType, resourceName, actionID string, err error)
}

// Ticker owns the two recurring tasks' timers and their shared dependencies.
type Ticker struct {
	store      *store.Store
	cc         *controllerclient.Client
	reconciler *reconciler.Reconciler
	logger     *slog.Logger
	rdb        *redis.Client
	alerts     Alerter

	updateTimeout      time.Duration
	checkExpireTimeout time.Duration
}

// New builds a Ticker.
func New(s *store.Store, cc *controllerclient.Client, r *reconciler.Reconciler, logger *slog.Logger, rdb *redis.Client, updateTimeout, checkExpireTimeout time.Duration) *Ticker {
	return &Ticker{
		store:              s,
		cc:                 cc,
		reconciler:         r,
		logger:             logger,
		rdb:                rdb,
		updateTimeout:      updateTimeout,
		checkExpireTimeout: checkExpireTimeout,
	}
}

// WithAlerter returns t with its Alerter set, for wiring Slack notification
// after construction.
func (t *Ticker) WithAlerter(alerts Alerter) *Ticker {
	t.alerts = alerts
	return t
}

// Run blocks, driving both recurring tasks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	t.logger.Info("ticker started", "update_timeout", t.updateTimeout, "check_expire_timeout", t.checkExpireTimeout)

	updateTick := time.NewTicker(t.updateTimeout)
	defer updateTick.Stop()
	expireTick := time.NewTicker(t.checkExpireTimeout)
	defer expireTick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopped")
			return
		case <-updateTick.C:
			t.reconciler.Tick(ctx)
		case <-expireTick.C:
			t.checkResourcesExpiration(ctx)
		}
	}
}

// checkResourcesExpiration sweeps Connections whose end_time has passed,
// releasing their endpoints and removing the corresponding upstream
// cross-connects, with one queue/execute per distinct device touched.
func (t *Ticker) checkResourcesExpiration(ctx context.Context) {
	readSess, err := t.store.OpenSession(ctx)
	if err != nil {
		t.logger.Error("check_resources_expiration: opening session", "error", err)
		return
	}
	expired, err := readSess.GetExpiredConnections(ctx, time.Now().UTC())
	readSess.Close()
	if err != nil {
		t.logger.Error("check_resources_expiration: listing expired connections", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	touched := map[device]struct{}{}
	for _, sc := range expired {
		d := device{resourceType: sc.Ingress.ResourceType, resourceName: sc.Ingress.ResourceName}

		writeSess, err := t.store.OpenSession(ctx)
		if err != nil {
			t.logger.Error("check_resources_expiration: opening release session", "error", err)
			continue
		}
		if err := writeSess.DestroyConnection(ctx, sc.Ingress.EndpointID, sc.Egress.EndpointID); err != nil {
			t.logger.Warn("check_resources_expiration: releasing endpoints", "connection", sc.Connection.ID, "error", err)
			writeSess.Close()
			continue
		}
		if err := writeSess.Commit(); err != nil {
			t.logger.Error("check_resources_expiration: committing release", "connection", sc.Connection.ID, "error", err)
			continue
		}

		if err := t.cc.DeleteXConnect(ctx, d.resourceType, d.resourceName, sc.Connection.XConnID); err != nil {
			t.logger.Warn("check_resources_expiration: deleting upstream cross-connect", "xconn", sc.Connection.XConnID, "error", err)
			continue
		}

		telemetry.ExpiredConnectionsTotal.Inc()
		touched[d] = struct{}{}
	}

	for d := range touched {
		t.executeQueueOnce(ctx, d)
	}
}

func (t *Ticker) executeQueueOnce(ctx context.Context, d device) {
	locked, err := platform.TryLock(ctx, t.rdb, d.lockKey(), queueExecuteLockTTL)
	if err != nil {
		t.logger.Warn("check_resources_expiration: acquiring queue/execute lock", "error", err)
		return
	}
	if !locked {
		return
	}
	defer platform.Unlock(ctx, t.rdb, d.lockKey())

	execErr := t.cc.QueueExecute(ctx, d.resourceType, d.resourceName)
	if execErr == nil {
		return
	}
	if execErr = t.cc.QueueExecute(ctx, d.resourceType, d.resourceName); execErr == nil {
		return
	}
	t.logger.Warn("check_resources_expiration: queue/execute", "type", d.resourceType, "name", d.resourceName, "error", execErr)
	if t.alerts != nil {
		t.alerts.NotifyQueueExecuteError(ctx, d.resourceType, d.resourceName, "", execErr)
	}
}
