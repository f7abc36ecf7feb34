package session

// Store provides access to the sessions of a gateway. Implementations must be
// safe for concurrent use; operations on distinct sessions do not block each
// other.
type Store interface {
	// Create stores a new session. It fails with a KeyAlreadyExists StoreErr if
	// a session with the same ID exists.
	Create(*SessionData) error

	// Get returns a copy of the session.
	Get(id string) (*SessionData, error)

	// Update runs fn on a copy of the session and commits the copy only if fn
	// returns nil. Concurrent updates of the same session are applied one at a
	// time, each seeing the result of the previous one.
	Update(id string, fn func(*SessionData) error) error

	// Put overwrites the session unconditionally. Recovery uses it to restore a
	// session from the audit log.
	Put(*SessionData) error

	// IDs lists the identifiers of all stored sessions.
	IDs() ([]string, error)

	// Close releases the resources of the store.
	Close() error
}
