package controllerclient

import "encoding/xml"

// XConnection is the wire shape OpenNaaS expects for creating a cross-connect
// and returns when describing one.
type XConnection struct {
	XMLName       xml.Name `xml:"xConnection"`
	InstanceID    string   `xml:"instanceID"`
	SrcEndPointID string   `xml:"srcEndPointId"`
	SrcLabelID    string   `xml:"srcLabelId"`
	DstEndPointID string   `xml:"dstEndPointId"`
	DstLabelID    string   `xml:"dstLabelId"`
}

// entryList decodes any OpenNaaS list response, whose root wraps repeated
// <entry> elements (resource types, resource names, endpoint ids, label ids,
// cross-connect instance ids all share this shape).
type entryList struct {
	Entries []string `xml:"entry"`
}

// responseEntry is one action outcome inside a queue/execute reply.
type responseEntry struct {
	Status   string `xml:"status"`
	ActionID string `xml:"actionID"`
}

// queueExecuteResult decodes the (possibly repeated) <responses> entries a
// queue/execute call returns.
type queueExecuteResult struct {
	Responses []responseEntry `xml:"responses"`
}
