// Package storage provides the key-value store contract backing the
// rating cache and configuration scalars. Read/write failures are
// absorbed at this boundary: Get falls back to the caller's default
// and Set logs the failure, so persistence problems never propagate
// as crashes into the pipeline.
package storage

// Storage keys used by the pipeline
const (
	KeyRatings            = "ratings"
	KeyBlacklistedHandles = "blacklistedHandles"
)

// KV is the key-value store contract
type KV interface {
	// Get returns the value for key, or def when the key is absent
	// or the store is unavailable.
	Get(key, def string) string
	// Set stores value under key. Failures are logged, not returned.
	Set(key, value string)
}
