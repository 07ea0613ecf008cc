package resourcemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
	"github.com/opennaas/roadm-am/internal/platform"
	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/store"
)

// device identifies one OpenNaaS-managed resource by its (type, name) key,
// used to deduplicate queue/execute calls across connections that share it.
type device struct {
	resourceType string
	resourceName string
}

func (d device) lockKey() string {
	return fmt.Sprintf("roadmam:queue-execute:%s:%s", d.resourceType, d.resourceName)
}

const queueExecuteLockTTL = 10 * time.Second

// Alerter receives notification of a persistent queue/execute failure, so an
// operator can be paged even though the slice action itself still fails
// back to the caller. A nil Alerter disables notification.
type Alerter interface {
	NotifyQueueExecuteError(ctx context.Context, resourceType, resourceName, actionID string, err error)
}

// resolveSliceTriples fetches every (ingress, egress, connection) triple for
// the given slices, within a single session.
func (m *Manager) resolveSliceTriples(ctx context.Context, slices []string) ([]store.SliceConnection, error) {
	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var all []store.SliceConnection
	for _, sliceURN := range slices {
		conns, err := sess.GetSlice(ctx, sliceURN)
		if err != nil {
			return nil, err
		}
		all = append(all, conns...)
	}
	if err := sess.Commit(); err != nil {
		return nil, err
	}
	return all, nil
}

// sameDevice enforces that a Connection's ingress and egress endpoints
// belong to the same OpenNaaS-managed device.
func sameDevice(sc store.SliceConnection) error {
	if sc.Ingress.ResourceName != sc.Egress.ResourceName || sc.Ingress.ResourceType != sc.Egress.ResourceType {
		return domainerr.ONS(fmt.Sprintf(
			"connection %d spans two devices (%s/%s vs %s/%s)",
			sc.Connection.ID, sc.Ingress.ResourceType, sc.Ingress.ResourceName, sc.Egress.ResourceType, sc.Egress.ResourceName), nil)
	}
	return nil
}

// StartSlices flips every connection in the given slices to READY_BUSY and
// instructs OpenNaaS to create the corresponding cross-connects, issuing
// exactly one queue/execute per distinct device touched.
func (m *Manager) StartSlices(ctx context.Context, slices []string) error {
	return m.applyToSlices(ctx, "start", slices, m.startConn)
}

// StopSlices flips every connection back to READY and deletes the
// corresponding upstream cross-connects.
func (m *Manager) StopSlices(ctx context.Context, slices []string) error {
	return m.applyToSlices(ctx, "stop", slices, m.stopConn)
}

// DeleteSlices releases every connection (row deleted, endpoints freed) and
// deletes the corresponding upstream cross-connects.
func (m *Manager) DeleteSlices(ctx context.Context, slices []string) error {
	return m.applyToSlices(ctx, "delete", slices, m.releaseConn)
}

// ForceStartSlices is the force variant of StartSlices. It is intentionally
// not implemented.
func (m *Manager) ForceStartSlices(ctx context.Context, slices []string) error {
	return domainerr.ONS("force_start_slices is not implemented", nil)
}

// ForceStopSlices is the force variant of StopSlices. It is intentionally
// not implemented.
func (m *Manager) ForceStopSlices(ctx context.Context, slices []string) error {
	return domainerr.ONS("force_stop_slices is not implemented", nil)
}

// ForceDeleteSlices is the force variant of DeleteSlices. It is intentionally
// not implemented.
func (m *Manager) ForceDeleteSlices(ctx context.Context, slices []string) error {
	return domainerr.ONS("force_delete_slices is not implemented", nil)
}

// applyToSlices resolves each slice's connection triples, invokes perConn on
// each, then issues exactly one queue/execute per distinct device touched.
func (m *Manager) applyToSlices(ctx context.Context, action string, slices []string, perConn func(context.Context, store.SliceConnection) (device, error)) error {
	conns, err := m.resolveSliceTriples(ctx, slices)
	if err != nil {
		telemetry.SliceActionsTotal.WithLabelValues(action, "error").Inc()
		return err
	}

	touched := map[device]struct{}{}
	for _, sc := range conns {
		if err := sameDevice(sc); err != nil {
			telemetry.SliceActionsTotal.WithLabelValues(action, "error").Inc()
			return err
		}
		d, err := perConn(ctx, sc)
		if err != nil {
			telemetry.SliceActionsTotal.WithLabelValues(action, "error").Inc()
			return err
		}
		touched[d] = struct{}{}
	}

	for d := range touched {
		if err := m.executeQueueOnce(ctx, d); err != nil {
			telemetry.SliceActionsTotal.WithLabelValues(action, "error").Inc()
			return err
		}
	}

	telemetry.SliceActionsTotal.WithLabelValues(action, "ok").Inc()
	return nil
}

// executeQueueOnce calls queue/execute for a device, guarded by a short-TTL
// Redis lock so a burst of retried slice actions against the same device
// doesn't re-issue the call while one is already in flight. A single
// immediate retry absorbs a transient upstream blip before the failure is
// treated as persistent and escalated to the operator.
func (m *Manager) executeQueueOnce(ctx context.Context, d device) error {
	locked, err := platform.TryLock(ctx, m.rdb, d.lockKey(), queueExecuteLockTTL)
	if err != nil {
		return domainerr.ONS("acquiring queue/execute lock", err)
	}
	if !locked {
		m.logger.Debug("queue/execute already in flight for device, skipping", "type", d.resourceType, "name", d.resourceName)
		return nil
	}
	defer platform.Unlock(ctx, m.rdb, d.lockKey())

	execErr := m.cc.QueueExecute(ctx, d.resourceType, d.resourceName)
	if execErr == nil {
		return nil
	}
	if execErr = m.cc.QueueExecute(ctx, d.resourceType, d.resourceName); execErr == nil {
		return nil
	}
	if m.alerts != nil {
		m.alerts.NotifyQueueExecuteError(ctx, d.resourceType, d.resourceName, "", execErr)
	}
	return execErr
}

// startConn flips a connection's pair to READY_BUSY and posts an xConnection
// create upstream.
func (m *Manager) startConn(ctx context.Context, sc store.SliceConnection) (device, error) {
	d := device{resourceType: sc.Ingress.ResourceType, resourceName: sc.Ingress.ResourceName}

	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return device{}, err
	}
	defer sess.Close()
	if err := sess.OperConnection(ctx, sc.Ingress.EndpointID, sc.Egress.EndpointID, store.OperationalReadyBusy); err != nil {
		return device{}, err
	}
	if err := sess.Commit(); err != nil {
		return device{}, err
	}

	err = m.cc.CreateXConnect(ctx, d.resourceType, d.resourceName, controllerclient.XConnection{
		InstanceID:    sc.Connection.XConnID,
		SrcEndPointID: sc.Ingress.Endpoint,
		SrcLabelID:    sc.Ingress.Label,
		DstEndPointID: sc.Egress.Endpoint,
		DstLabelID:    sc.Egress.Label,
	})
	if err != nil {
		return device{}, err
	}
	return d, nil
}

// stopConn flips a connection's pair back to READY and deletes the
// upstream cross-connect.
func (m *Manager) stopConn(ctx context.Context, sc store.SliceConnection) (device, error) {
	d := device{resourceType: sc.Ingress.ResourceType, resourceName: sc.Ingress.ResourceName}

	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return device{}, err
	}
	defer sess.Close()
	if err := sess.OperConnection(ctx, sc.Ingress.EndpointID, sc.Egress.EndpointID, store.OperationalReady); err != nil {
		return device{}, err
	}
	if err := sess.Commit(); err != nil {
		return device{}, err
	}

	if err := m.cc.DeleteXConnect(ctx, d.resourceType, d.resourceName, sc.Connection.XConnID); err != nil {
		return device{}, err
	}
	return d, nil
}

// releaseConn deletes a connection row, frees its endpoints, and deletes
// the upstream cross-connect.
func (m *Manager) releaseConn(ctx context.Context, sc store.SliceConnection) (device, error) {
	d := device{resourceType: sc.Ingress.ResourceType, resourceName: sc.Ingress.ResourceName}

	sess, err := m.store.OpenSession(ctx)
	if err != nil {
		return device{}, err
	}
	defer sess.Close()
	if err := sess.DestroyConnection(ctx, sc.Ingress.EndpointID, sc.Egress.EndpointID); err != nil {
		return device{}, err
	}
	if err := sess.Commit(); err != nil {
		return device{}, err
	}

	if err := m.cc.DeleteXConnect(ctx, d.resourceType, d.resourceName, sc.Connection.XConnID); err != nil {
		return device{}, err
	}
	return d, nil
}
