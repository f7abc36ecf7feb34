package wal

import "github.com/mosaicnetworks/satp/src/odap"

// Log is the persistence interface of the audit log.
type Log interface {
	// Append assigns the next index of the session to the entry and stores
	// it. The entry is durable when Append returns.
	Append(*Entry) error

	// Query returns the entries of a session ordered by index.
	Query(sessionID string) ([]*Entry, error)

	// Last returns the most recent entry of a session, or an Empty StoreErr.
	Last(sessionID string) (*Entry, error)

	// Sessions lists the sessions that have at least one entry.
	Sessions() ([]string, error)

	// Close releases the resources of the log.
	Close() error
}

// Contains reports whether one of the entries has the given phase and stage.
func Contains(entries []*Entry, phase odap.Phase, stage odap.Stage) bool {
	for _, e := range entries {
		if e.Is(phase, stage) {
			return true
		}
	}
	return false
}

// Stages returns the stages recorded for each phase, in order of appearance.
func Stages(entries []*Entry) map[odap.Phase][]odap.Stage {
	res := make(map[odap.Phase][]odap.Stage)
	for _, e := range entries {
		res[e.Phase] = append(res[e.Phase], e.Stage)
	}
	return res
}
