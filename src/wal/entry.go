package wal

import (
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
)

// Entry is one record of the audit log.
type Entry struct {
	SessionID string     `json:"sessionID"`
	Index     int        `json:"index"`
	Phase     odap.Phase `json:"phase"`
	Stage     odap.Stage `json:"stage"`
	Timestamp int64      `json:"timestamp"` // unix milliseconds
	Snapshot  []byte     `json:"snapshot"`
}

// NewEntry ...
func NewEntry(sessionID string, phase odap.Phase, stage odap.Stage, timestamp int64, snapshot []byte) *Entry {
	return &Entry{
		SessionID: sessionID,
		Phase:     phase,
		Stage:     stage,
		Timestamp: timestamp,
		Snapshot:  snapshot,
	}
}

// Is reports whether the entry has the given phase and stage.
func (e *Entry) Is(phase odap.Phase, stage odap.Stage) bool {
	return e.Phase == phase && e.Stage == stage
}

// Marshal ...
func (e *Entry) Marshal() ([]byte, error) {
	return crypto.CanonicalJSON(e)
}

// Unmarshal ...
func (e *Entry) Unmarshal(data []byte) error {
	return crypto.DecodeJSON(data, e)
}
