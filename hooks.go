package snapcache

// Miss reasons reported to Hooks.Miss.
const (
	MissAbsent        = "absent"         // no entry under the key
	MissStale         = "stale"          // a dependency fingerprint moved
	MissValidateError = "validate_error" // re-fingerprinting failed
	MissStorageError  = "storage_error"  // Storage.Get failed
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The occasion calls them on hot paths.
type Hooks interface {
	// A valid entry was served without running the generator.
	Hit(kind string)
	// The generator is about to run for a reason in Miss*.
	Miss(kind, reason string)
	// No storage configured; the generator ran directly.
	Bypass(kind string)
	// The call waited on an identical in-flight call instead of running.
	Coalesced(kind string)

	// Storage failed. op ∈ {"get", "set"}.
	StorageError(kind, op string, err error)
	// A generated result could not be snapshotted.
	SnapshotError(kind string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string)                         {}
func (NopHooks) Miss(string, string)                {}
func (NopHooks) Bypass(string)                      {}
func (NopHooks) Coalesced(string)                   {}
func (NopHooks) StorageError(string, string, error) {}
func (NopHooks) SnapshotError(string, error)        {}
