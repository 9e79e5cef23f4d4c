package redis

import (
	"crypto/sha256"
	"encoding/hex"
)

const (
	// KeyPrefixCache is the prefix for cached download results
	KeyPrefixCache = "ytdown:cache:"
	// KeyInstanceStats is the hash of instance URL -> JSON stats
	KeyInstanceStats = "ytdown:stats:instances"
	// KeyDispatchTotals holds the JSON dispatch totals
	KeyDispatchTotals = "ytdown:stats:totals"
)

// CacheKey returns the Redis key for a canonical request encoding.
// The request is hashed so keys stay short whatever the options.
func CacheKey(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return KeyPrefixCache + hex.EncodeToString(sum[:])
}

// InstanceStatsKey returns the key of the per-instance stats hash
func InstanceStatsKey() string {
	return KeyInstanceStats
}

// DispatchTotalsKey returns the key of the dispatch totals
func DispatchTotalsKey() string {
	return KeyDispatchTotals
}
