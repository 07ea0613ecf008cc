package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opennaas/roadm-am/internal/platform"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := platform.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		t.Fatalf("resolving migrations dir: %v", err)
	}
	if err := platform.RunMigrations(db, migrationsDir); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return New(db)
}

func openSession(t *testing.T, s *Store) *Session {
	t.Helper()
	sess, err := s.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("opening session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestSessionOpenTwiceFails(t *testing.T) {
	s := newTestStore(t)
	sess := s.NewSession()
	if err := sess.Open(context.Background(), s); err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer sess.Close()

	if err := sess.Open(context.Background(), s); err == nil {
		t.Fatal("expected error opening session twice")
	}
}

func TestSessionCommitThenCloseIsNoop(t *testing.T) {
	s := newTestStore(t)
	sess := s.NewSession()
	if err := sess.Open(context.Background(), s); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close after commit should be a no-op: %v", err)
	}
}

func TestAuditResourcesUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := openSession(t, s)

	batch := []InventoryResource{{Type: "roadm", Name: "node-a"}}
	if err := sess.AuditResources(ctx, batch); err != nil {
		t.Fatalf("first audit: %v", err)
	}
	if err := sess.AuditResources(ctx, batch); err != nil {
		t.Fatalf("second audit (should bump audit_time, not fail): %v", err)
	}

	id, err := getResourceID(ctx, sess.tx, ResourceKey{Name: "node-a", Type: "roadm"})
	if err != nil {
		t.Fatalf("resolving resource: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero resource id")
	}
}

func TestCheckToReserveRequiresFreeEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := openSession(t, s)

	mustSeedResource(ctx, t, sess, "node-a", "roadm")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth0", "1")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth1", "1")
	mustPromoteFree(ctx, t, sess)

	ingress, egress, xconnID, err := sess.CheckToReserve(ctx, ResourceKey{Name: "node-a", Type: "roadm"}, "eth0", "1", "eth1", "1")
	if err != nil {
		t.Fatalf("check_to_reserve: %v", err)
	}
	if xconnID != "eth0:1::eth1:1" {
		t.Fatalf("unexpected xconn_id: %s", xconnID)
	}

	if err := sess.MakeConnection(ctx, ingress, egress, xconnID, "urn:publicid:IDN+site+slice+s1", time.Now().Add(time.Hour), ClientInfo{Name: "alice"}); err != nil {
		t.Fatalf("make_connection: %v", err)
	}

	if _, _, _, err := sess.CheckToReserve(ctx, ResourceKey{Name: "node-a", Type: "roadm"}, "eth0", "1", "eth1", "1"); err == nil {
		t.Fatal("expected NotAvailable for already-allocated endpoints")
	}
}

func TestMakeConnectionAndGetSliceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := openSession(t, s)

	mustSeedResource(ctx, t, sess, "node-a", "roadm")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth0", "1")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth1", "1")
	mustPromoteFree(ctx, t, sess)

	ingress, egress, xconnID, err := sess.CheckToReserve(ctx, ResourceKey{Name: "node-a", Type: "roadm"}, "eth0", "1", "eth1", "1")
	if err != nil {
		t.Fatalf("check_to_reserve: %v", err)
	}
	sliceURN := "urn:publicid:IDN+site+slice+s1"
	endTime := time.Now().Add(time.Hour).UTC()
	if err := sess.MakeConnection(ctx, ingress, egress, xconnID, sliceURN, endTime, ClientInfo{Name: "alice", ID: "urn:publicid:IDN+site+user+alice"}); err != nil {
		t.Fatalf("make_connection: %v", err)
	}

	conns, err := sess.GetSlice(ctx, sliceURN)
	if err != nil {
		t.Fatalf("get_slice: %v", err)
	}
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
	if conns[0].Ingress.Allocation != AllocationAllocated || conns[0].Egress.Allocation != AllocationAllocated {
		t.Fatal("expected both endpoints ALLOCATED after make_connection")
	}

	if n, err := sess.RenewSlice(ctx, sliceURN, endTime.Add(time.Hour), ClientInfo{Name: "alice"}); err != nil || n != 1 {
		t.Fatalf("renew_slice: n=%d err=%v", n, err)
	}

	if err := sess.DestroyConnection(ctx, ingress, egress); err != nil {
		t.Fatalf("destroy_connection: %v", err)
	}
	if _, err := sess.GetConnectionByEndpoints(ctx, ingress, egress); err == nil {
		t.Fatal("expected NotFound after destroy_connection")
	}
}

func TestAuditConnectionsPromotesEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := openSession(t, s)

	mustSeedResource(ctx, t, sess, "node-a", "roadm")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth0", "1")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth1", "1")

	tuple := XConnTuple{SrcEndpoint: "eth0", SrcLabel: "1", DstEndpoint: "eth1", DstLabel: "1"}
	if err := sess.AuditConnections(ctx, []InventoryXConn{{Type: "roadm", Name: "node-a", Tuple: tuple}}); err != nil {
		t.Fatalf("first audit_connections: %v", err)
	}
	if err := sess.AuditConnections(ctx, []InventoryXConn{{Type: "roadm", Name: "node-a", Tuple: tuple}}); err != nil {
		t.Fatalf("second audit_connections (should bump audit_time): %v", err)
	}

	resources, err := sess.GetResources(ctx)
	if err != nil {
		t.Fatalf("get_resources: %v", err)
	}
	for _, r := range resources {
		if r.Allocation != AllocationAllocated {
			t.Fatalf("expected endpoint %s/%s to be ALLOCATED, got %s", r.Endpoint, r.Label, r.Allocation)
		}
	}
}

func TestAuditTerminatedReapsStaleResourcesAndCascadesEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sess := openSession(t, s)

	mustSeedResource(ctx, t, sess, "node-a", "roadm")
	mustSeedRoadm(ctx, t, sess, "roadm", "node-a", "eth0", "1")

	cutoff := time.Now().Add(time.Hour)
	reaped, err := sess.AuditTerminated(ctx, cutoff)
	if err != nil {
		t.Fatalf("audit_terminated: %v", err)
	}
	if len(reaped) != 1 || reaped[0] != "node-a" {
		t.Fatalf("expected node-a to be reaped, got %v", reaped)
	}

	resources, err := sess.GetResources(ctx)
	if err != nil {
		t.Fatalf("get_resources: %v", err)
	}
	if len(resources) != 0 {
		t.Fatalf("expected cascade delete to remove all endpoints, got %v", resources)
	}
}

func mustSeedResource(ctx context.Context, t *testing.T, sess *Session, name, typ string) {
	t.Helper()
	if err := sess.AuditResources(ctx, []InventoryResource{{Name: name, Type: typ}}); err != nil {
		t.Fatalf("seeding resource %s: %v", name, err)
	}
}

func mustSeedRoadm(ctx context.Context, t *testing.T, sess *Session, typ, name, endpoint, label string) {
	t.Helper()
	if err := sess.AuditRoadms(ctx, []InventoryRoadm{{Type: typ, Name: name, Endpoint: endpoint, Label: label}}); err != nil {
		t.Fatalf("seeding roadm %s/%s: %v", endpoint, label, err)
	}
}

// mustPromoteFree completes the audit cycle for freshly seeded endpoints,
// flipping them from AUDIT_TRANS to FREE so they are reservable.
func mustPromoteFree(ctx context.Context, t *testing.T, sess *Session) {
	t.Helper()
	if _, err := sess.AuditTerminated(ctx, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("promoting seeded endpoints to FREE: %v", err)
	}
}
