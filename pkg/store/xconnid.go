package store

import "fmt"

// XConnID computes the deterministic cross-connect identity OpenNaaS uses:
// "src_ep:src_label::dst_ep:dst_label". The double-colon separator is
// significant and must be preserved byte-for-byte.
func XConnID(srcEndpoint, srcLabel, dstEndpoint, dstLabel string) string {
	return fmt.Sprintf("%s:%s::%s:%s", srcEndpoint, srcLabel, dstEndpoint, dstLabel)
}
