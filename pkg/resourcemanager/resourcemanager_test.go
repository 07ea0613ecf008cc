package resourcemanager

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
	"github.com/opennaas/roadm-am/internal/platform"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
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
	return store.New(db)
}

func seedDevice(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	sess, err := s.OpenSession(ctx)
	if err != nil {
		t.Fatalf("opening seed session: %v", err)
	}
	defer sess.Close()

	if err := sess.AuditResources(ctx, []store.InventoryResource{{Type: "roadm", Name: "node-a"}}); err != nil {
		t.Fatalf("seeding resource: %v", err)
	}
	if err := sess.AuditRoadms(ctx, []store.InventoryRoadm{
		{Type: "roadm", Name: "node-a", Endpoint: "eth0", Label: "1"},
		{Type: "roadm", Name: "node-a", Endpoint: "eth1", Label: "1"},
	}); err != nil {
		t.Fatalf("seeding roadms: %v", err)
	}
	if _, err := sess.AuditTerminated(ctx, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("promoting seeded endpoints to FREE: %v", err)
	}
	if err := sess.Commit(); err != nil {
		t.Fatalf("committing seed: %v", err)
	}
}

// newEchoControllerClient fakes an OpenNaaS server that accepts any
// xconnect create/delete and always reports success on queue/execute,
// recording the instance id it was asked to create.
func newEchoControllerClient(t *testing.T, lastInstanceID *string) *controllerclient.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/opennaas/roadm/node-a/xconnect/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			*lastInstanceID = extractInstanceID(string(body))
			w.Write([]byte(*lastInstanceID))
			return
		}
		w.Write([]byte(`<list></list>`))
	})
	mux.HandleFunc("/opennaas/roadm/node-a/xconnect/eth0:1::eth1:1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/opennaas/roadm/node-a/queue/execute", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<queueExecuteResponse><responses><status>OK</status><actionID>a1</actionID></responses></queueExecuteResponse>`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	host, portStr, _ := strings.Cut(u, ":")
	var port int
	for _, c := range portStr {
		if c < '0' || c > '9' {
			break
		}
		port = port*10 + int(c-'0')
	}
	return controllerclient.NewClient(controllerclient.Config{ServerAddress: host, ServerPort: port}, time.Second, nil)
}

func extractInstanceID(xmlBody string) string {
	const open, close_ = "<instanceID>", "</instanceID>"
	start := strings.Index(xmlBody, open)
	end := strings.Index(xmlBody, close_)
	if start < 0 || end < 0 {
		return ""
	}
	return xmlBody[start+len(open) : end]
}

func TestReserveResourcesAndGetSliceResources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedDevice(t, s)
	var lastInstanceID string
	cc := newEchoControllerClient(t, &lastInstanceID)
	m := New(s, cc, testLogger(), nil, time.Hour)

	specs := []ReserveSpec{{ResourceName: "node-a", ResourceType: "roadm", InEndpoint: "eth0", InLabel: "1", OutEndpoint: "eth1", OutLabel: "1"}}
	endTime := time.Now().Add(10 * time.Minute)
	resources, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s1", &endTime, store.ClientInfo{Name: "alice"})
	if err != nil {
		t.Fatalf("reserve_resources: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("expected 2 GeniResources, got %d", len(resources))
	}
	for _, r := range resources {
		if r.Allocation != GeniAllocated || r.Operational != store.OperationalReady {
			t.Fatalf("unexpected resource state: %+v", r)
		}
	}

	manifest, err := m.GetSliceResources(ctx, "urn:publicid:IDN+site+slice+s1")
	if err != nil {
		t.Fatalf("get_slice_resources: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("expected 2 detailed resources, got %d", len(manifest))
	}
	if manifest[0].Details == nil || manifest[0].Details.ConnectedOutURN == "" {
		t.Fatal("expected peer urn cross-link in details")
	}
}

func TestReserveResourcesRejectsPastEndTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedDevice(t, s)
	var lastInstanceID string
	cc := newEchoControllerClient(t, &lastInstanceID)
	m := New(s, cc, testLogger(), nil, time.Hour)

	past := time.Now().Add(-time.Minute)
	specs := []ReserveSpec{{ResourceName: "node-a", ResourceType: "roadm", InEndpoint: "eth0", InLabel: "1", OutEndpoint: "eth1", OutLabel: "1"}}
	if _, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s1", &past, store.ClientInfo{}); err == nil {
		t.Fatal("expected error for past end_time")
	}
}

func TestReserveResourcesUnknownNameFailsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedDevice(t, s)
	var lastInstanceID string
	cc := newEchoControllerClient(t, &lastInstanceID)
	m := New(s, cc, testLogger(), nil, time.Hour)

	specs := []ReserveSpec{{ResourceName: "node-zz", ResourceType: "roadm", InEndpoint: "eth0", InLabel: "1", OutEndpoint: "eth1", OutLabel: "1"}}
	_, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s1", nil, store.ClientInfo{})
	if !domainerr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReserveResourcesBusyEndpointFailsNotAvailable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedDevice(t, s)
	var lastInstanceID string
	cc := newEchoControllerClient(t, &lastInstanceID)
	m := New(s, cc, testLogger(), nil, time.Hour)

	specs := []ReserveSpec{{ResourceName: "node-a", ResourceType: "roadm", InEndpoint: "eth0", InLabel: "1", OutEndpoint: "eth1", OutLabel: "1"}}
	if _, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s1", nil, store.ClientInfo{}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	_, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s2", nil, store.ClientInfo{})
	if !domainerr.IsNotAvailable(err) {
		t.Fatalf("expected NotAvailable, got %v", err)
	}
}

func TestStartStopDeleteSlices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedDevice(t, s)
	var lastInstanceID string
	cc := newEchoControllerClient(t, &lastInstanceID)
	m := New(s, cc, testLogger(), nil, time.Hour)

	specs := []ReserveSpec{{ResourceName: "node-a", ResourceType: "roadm", InEndpoint: "eth0", InLabel: "1", OutEndpoint: "eth1", OutLabel: "1"}}
	endTime := time.Now().Add(10 * time.Minute)
	if _, err := m.ReserveResources(ctx, specs, "urn:publicid:IDN+site+slice+s1", &endTime, store.ClientInfo{}); err != nil {
		t.Fatalf("reserve_resources: %v", err)
	}

	if err := m.StartSlices(ctx, []string{"urn:publicid:IDN+site+slice+s1"}); err != nil {
		t.Fatalf("start_slices: %v", err)
	}
	if lastInstanceID != "eth0:1::eth1:1" {
		t.Fatalf("expected instanceID eth0:1::eth1:1, got %s", lastInstanceID)
	}

	manifest, err := m.GetSliceResources(ctx, "urn:publicid:IDN+site+slice+s1")
	if err != nil {
		t.Fatalf("get_slice_resources: %v", err)
	}
	for _, r := range manifest {
		if r.Operational != store.OperationalReadyBusy {
			t.Fatalf("expected READY_BUSY after start_slices, got %s", r.Operational)
		}
	}

	if err := m.StopSlices(ctx, []string{"urn:publicid:IDN+site+slice+s1"}); err != nil {
		t.Fatalf("stop_slices: %v", err)
	}
	if err := m.DeleteSlices(ctx, []string{"urn:publicid:IDN+site+slice+s1"}); err != nil {
		t.Fatalf("delete_slices: %v", err)
	}

	manifest, err = m.GetSliceResources(ctx, "urn:publicid:IDN+site+slice+s1")
	if err != nil {
		t.Fatalf("get_slice_resources after delete: %v", err)
	}
	if len(manifest) != 0 {
		t.Fatalf("expected empty manifest after delete_slices, got %v", manifest)
	}
}
