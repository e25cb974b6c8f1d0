//go:build ksync_cachelinesize_128 && !ksync_cachelinesize_64

package opt

// CacheLineSize_ pinned to 128 bytes via build tag (e.g. apple silicon).
const CacheLineSize_ = 128
