// Package kvstore provides a defensive wrapper over durable key-value
// storage. It is the client-side analogue of browser local storage: a
// small persistent string map that the session layer and the local
// document store write through.
//
// Every operation is contained: storage failures (missing data
// directory, permission errors, malformed snapshots) are logged and
// converted into boolean or default-value results. Callers never see an
// error from this package.
package kvstore

// Store is the durable key-value contract consumed by the session
// manager and the local document store.
type Store interface {
	// Get returns the raw value stored under key, or fallback if the key
	// is absent or the store is unreadable.
	Get(key, fallback string) string

	// GetJSON unmarshals the value stored under key into target. It
	// returns false, leaving target untouched, when the key is absent or
	// the stored value does not parse.
	GetJSON(key string, target any) bool

	// Set stores a raw string value. Returns false if persistence failed.
	Set(key, value string) bool

	// SetJSON marshals value and stores it under key. Returns false if
	// marshalling or persistence failed.
	SetJSON(key string, value any) bool

	// Remove deletes a key. Returns false if persistence failed; removing
	// an absent key is a successful no-op.
	Remove(key string) bool

	// Clear removes every key. Returns false if persistence failed.
	Clear() bool

	// IsAvailable probes the store with a disposable key (write then
	// delete) and reports whether durable writes currently succeed.
	IsAvailable() bool
}
