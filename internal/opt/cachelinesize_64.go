//go:build ksync_cachelinesize_64

package opt

// CacheLineSize_ pinned to 64 bytes via build tag for cross-builds where
// automatic detection is undesirable.
const CacheLineSize_ = 64
