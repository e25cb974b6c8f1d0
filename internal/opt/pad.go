package opt

// CacheLinePad separates hot fields to prevent false sharing.
type CacheLinePad struct {
	_ [CacheLineSize_]byte
}
