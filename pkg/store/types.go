package store

import "time"

// Allocation is the lifecycle state of an Endpoint.
type Allocation string

const (
	AllocationFree        Allocation = "FREE"
	AllocationAllocated   Allocation = "ALLOCATED"
	AllocationProvisioned Allocation = "PROVISIONED"
	AllocationAuditTrans  Allocation = "AUDIT_TRANS"
)

// Operational is the GENI-facing operational status of an Endpoint or
// Connection.
type Operational string

const (
	OperationalReady     Operational = "READY"
	OperationalReadyBusy Operational = "READY_BUSY"
)

// Resource is one row per device managed by OpenNaaS.
type Resource struct {
	ID        int64
	Name      string
	Type      string
	AuditTime time.Time
}

// Endpoint is one row per labeled port on a device.
type Endpoint struct {
	ID          int64
	ResourceID  int64
	Endpoint    string
	Label       string
	Allocation  Allocation
	Operational Operational
	AuditTime   time.Time
}

// Connection is one row per reserved/active cross-connect.
type Connection struct {
	ID          int64
	IngressID   int64
	EgressID    int64
	XConnID     string
	SliceURN    string
	EndTime     time.Time
	ClientName  string
	ClientID    string
	ClientEmail string
	Operational Operational
	AuditTime   time.Time
}

// ClientInfo carries the requester identity fields shared by
// MakeConnection and RenewSlice.
type ClientInfo struct {
	Name  string
	ID    string
	Email string
}

// ResourceRow is the flattened (name, endpoint, label, slice_urn, end_time,
// type, allocation) view returned by GetResources.
type ResourceRow struct {
	ResourceName string
	Endpoint     string
	Label        string
	ResourceType string
	Allocation   Allocation
	Operational  Operational
	SliceURN     *string
	EndTime      *time.Time
}

// EndpointView carries one side of a connection as returned by GetSlice:
// the endpoint plus its owning resource's identity.
type EndpointView struct {
	EndpointID   int64
	Endpoint     string
	Label        string
	Allocation   Allocation
	Operational  Operational
	ResourceName string
	ResourceType string
}

// SliceConnection pairs the ingress/egress views of a Connection for
// GetSlice's result.
type SliceConnection struct {
	Ingress    EndpointView
	Egress     EndpointView
	Connection Connection
}

// InventoryResource is one (type, name) pair pulled from the controller
// during reconciliation.
type InventoryResource struct {
	Type string
	Name string
}

// InventoryRoadm is one (type, name, endpoint, label) tuple observed during
// reconciliation.
type InventoryRoadm struct {
	Type     string
	Name     string
	Endpoint string
	Label    string
}

// XConnTuple is the 5-tuple describing one upstream cross-connect, minus
// its instance id (the Store derives xconn_id itself).
type XConnTuple struct {
	SrcEndpoint string
	SrcLabel    string
	DstEndpoint string
	DstLabel    string
}

// InventoryXConn is one (type, name, tuple) cross-connect observation.
type InventoryXConn struct {
	Type string
	Name string
	Tuple XConnTuple
}
