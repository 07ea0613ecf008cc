package controllerclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u := strings.TrimPrefix(srv.URL, "http://")
	host, portStr, _ := strings.Cut(u, ":")
	var port int
	for _, r := range portStr {
		if r < '0' || r > '9' {
			break
		}
		port = port*10 + int(r-'0')
	}

	c := NewClient(Config{ServerAddress: host, ServerPort: port}, time.Second, nil)
	return c, srv
}

func TestGetResourceTypes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/opennaas/resources/getResourceTypes" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`<list><entry>roadm</entry><entry>switch</entry></list>`))
	})

	types, err := c.GetResourceTypes(context.Background())
	if err != nil {
		t.Fatalf("GetResourceTypes: %v", err)
	}
	if len(types) != 2 || types[0] != "roadm" || types[1] != "switch" {
		t.Fatalf("unexpected types: %v", types)
	}
}

func TestCreateXConnectSendsXConnectionBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		for _, want := range []string{"<xConnection>", "<instanceID>eth0:1::eth1:1</instanceID>", "<srcEndPointId>eth0</srcEndPointId>"} {
			if !strings.Contains(string(body), want) {
				t.Fatalf("request body missing %s: %s", want, body)
			}
		}
		w.Write([]byte("eth0:1::eth1:1"))
	})

	err := c.CreateXConnect(context.Background(), "roadm", "node-a", XConnection{
		InstanceID:    "eth0:1::eth1:1",
		SrcEndPointID: "eth0",
		SrcLabelID:    "1",
		DstEndPointID: "eth1",
		DstLabelID:    "1",
	})
	if err != nil {
		t.Fatalf("CreateXConnect: %v", err)
	}
}

func TestCreateXConnectVerifiesInstanceID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wrong-id"))
	})

	err := c.CreateXConnect(context.Background(), "roadm", "node-a", XConnection{InstanceID: "eth0:1::eth1:1"})
	if err == nil {
		t.Fatal("expected error on instance id mismatch")
	}
	if !domainerr.Is(err, domainerr.KindONS) {
		t.Fatalf("expected ONS error, got %v", err)
	}
}

func TestQueueExecuteFailsOnErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<queueExecuteResponse><responses><status>ERROR</status><actionID>a17</actionID></responses></queueExecuteResponse>`))
	})

	err := c.QueueExecute(context.Background(), "roadm", "node-a")
	if err == nil {
		t.Fatal("expected error on ERROR status")
	}
	if !strings.Contains(err.Error(), "a17") {
		t.Fatalf("expected error to mention actionID a17, got %v", err)
	}
}

func TestQueueExecuteSucceedsOnOK(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<queueExecuteResponse><responses><status>OK</status><actionID>a1</actionID></responses></queueExecuteResponse>`))
	})

	if err := c.QueueExecute(context.Background(), "roadm", "node-a"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestNotFoundMapsToDomainError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, _, err := c.GetXConnect(context.Background(), "roadm", "node-a", "eth0:1::eth1:1")
	if !domainerr.IsNotFound(err) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}
