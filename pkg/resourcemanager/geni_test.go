package resourcemanager

import (
	"testing"

	"github.com/opennaas/roadm-am/pkg/store"
)

func TestRoadmURNRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		urn      string
		wantName string
		wantEP   string
		wantLbl  string
	}{
		{"simple", "roadmA:ep1:l1", "roadmA", "ep1", "l1"},
		{"numeric label", "node-a:eth0:1", "node-a", "eth0", "1"},
		{"label with colon", "node-a:eth0:1:40ghz", "node-a", "eth0", "1:40ghz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ep, label, err := DecodeRoadmURN(tt.urn)
			if err != nil {
				t.Fatalf("DecodeRoadmURN(%q): %v", tt.urn, err)
			}
			if name != tt.wantName || ep != tt.wantEP || label != tt.wantLbl {
				t.Fatalf("DecodeRoadmURN(%q) = (%q, %q, %q)", tt.urn, name, ep, label)
			}
			if got := CreateRoadmURN(name, ep, label); got != tt.urn {
				t.Fatalf("round trip: got %q, want %q", got, tt.urn)
			}
		})
	}
}

func TestDecodeRoadmURNRejectsMalformed(t *testing.T) {
	for _, urn := range []string{"", "roadmA", "roadmA:ep1"} {
		if _, _, _, err := DecodeRoadmURN(urn); err == nil {
			t.Fatalf("expected error decoding %q", urn)
		}
	}
}

func TestMapAllocationCollapsesTransients(t *testing.T) {
	tests := []struct {
		in   store.Allocation
		want GeniAllocation
	}{
		{store.AllocationFree, GeniUnallocated},
		{store.AllocationAuditTrans, GeniUnallocated},
		{store.AllocationAllocated, GeniAllocated},
		{store.AllocationProvisioned, GeniProvisioned},
	}
	for _, tt := range tests {
		if got := mapAllocation(tt.in); got != tt.want {
			t.Fatalf("mapAllocation(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
