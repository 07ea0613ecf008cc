package resourcemanager

import (
	"strings"
	"time"

	"github.com/opennaas/roadm-am/internal/domainerr"
	"github.com/opennaas/roadm-am/pkg/store"
)

// GeniAllocation is the GENI-facing allocation enum. The Store's internal
// AUDIT_TRANS transient is never exposed past the Resource Manager, so it
// collapses to UNALLOCATED alongside FREE.
type GeniAllocation string

const (
	GeniUnallocated GeniAllocation = "UNALLOCATED"
	GeniAllocated   GeniAllocation = "ALLOCATED"
	GeniProvisioned GeniAllocation = "PROVISIONED"
)

func mapAllocation(a store.Allocation) GeniAllocation {
	switch a {
	case store.AllocationAllocated:
		return GeniAllocated
	case store.AllocationProvisioned:
		return GeniProvisioned
	default: // FREE, AUDIT_TRANS
		return GeniUnallocated
	}
}

// GeniRoadmDetails carries the peer cross-link a detailed slice manifest
// adds to each GeniResource.
type GeniRoadmDetails struct {
	ConnectedInURN  string
	ConnectedOutURN string
}

// GeniResource is the value object the Resource Manager hands back to the
// GENI delegate. There is no error field: nothing here populates one, and
// the best-effort paths surface per-item failures via logging instead of
// API surface.
type GeniResource struct {
	URN         string
	SliceURN    string
	EndTime     *time.Time
	Type        string
	Allocation  GeniAllocation
	Operational store.Operational
	Details     *GeniRoadmDetails
}

// CreateRoadmURN builds the three-part "name:endpoint:label" URN.
func CreateRoadmURN(name, endpoint, label string) string {
	return name + ":" + endpoint + ":" + label
}

// DecodeRoadmURN splits a URN on its first two colons. A label containing
// colons is preserved verbatim in the third part.
func DecodeRoadmURN(urn string) (name, endpoint, label string, err error) {
	name, rest, ok := strings.Cut(urn, ":")
	if !ok {
		return "", "", "", domainerr.ONS("decoding roadm urn "+urn, nil)
	}
	endpoint, label, ok = strings.Cut(rest, ":")
	if !ok {
		return "", "", "", domainerr.ONS("decoding roadm urn "+urn, nil)
	}
	return name, endpoint, label, nil
}
