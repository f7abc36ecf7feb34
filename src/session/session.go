package session

import (
	"fmt"

	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
)

// ActionKind tags a rollback operation.
type ActionKind string

const (
	// ActionUnlock releases an asset locked on the source ledger.
	ActionUnlock ActionKind = "unlock"
	// ActionRecreate restores an asset deleted from the source ledger.
	ActionRecreate ActionKind = "recreate"
	// ActionDeleteCreated removes an asset created on the destination ledger.
	ActionDeleteCreated ActionKind = "delete-created"
)

// RollbackAction is one entry of the append-only rollback log of a session.
type RollbackAction struct {
	Kind      ActionKind `json:"kind"`
	Ledger    string     `json:"ledger"`
	AssetID   string     `json:"assetID"`
	ProofKey  string     `json:"proofKey"`
	ProofHash string     `json:"proofHash"`
	Timestamp int64      `json:"timestamp"`
}

// SessionData is the state of one transfer attempt as seen by one gateway.
type SessionData struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Role    Role   `json:"role"`
	Status  Status `json:"status"`
	Step    Step   `json:"step"`

	MaxRetries int   `json:"maxRetries"`
	MaxTimeout int64 `json:"maxTimeout"` // milliseconds

	LastSequenceNumber int64 `json:"lastSequenceNumber"`

	LoggingProfile       string              `json:"loggingProfile"`
	AccessControlProfile string              `json:"accessControlProfile"`
	ApplicationProfile   string              `json:"applicationProfile"`
	PayloadProfile       odap.PayloadProfile `json:"payloadProfile"`
	AssetProfile         odap.AssetProfile   `json:"assetProfile"`

	OriginatorPubKey          string `json:"originatorPubkey"`
	BeneficiaryPubKey         string `json:"beneficiaryPubkey"`
	SourceGatewayPubKey       string `json:"sourceGatewayPubkey"`
	RecipientGatewayPubKey    string `json:"recipientGatewayPubkey"`
	SourceGatewayDLTSystem    string `json:"sourceGatewayDltSystem"`
	RecipientGatewayDLTSystem string `json:"recipientGatewayDltSystem"`
	SourceGatewayAddr         string `json:"sourceGatewayAddr"`
	RecipientGatewayAddr      string `json:"recipientGatewayAddr"`
	SourceLedgerAssetID       string `json:"sourceLedgerAssetID"`
	RecipientLedgerAssetID    string `json:"recipientLedgerAssetID"`

	// Hashes and Signatures are keyed by message type.
	Hashes     map[odap.MessageType]string `json:"hashes"`
	Signatures map[odap.MessageType]string `json:"signatures"`

	// Replies holds the canonical encoding of the responses issued by a
	// destination, keyed by response type.
	Replies map[odap.MessageType]string `json:"replies"`

	LockEvidenceClaim           string `json:"lockEvidenceClaim"`
	LockEvidenceFormat          string `json:"lockEvidenceFormat"`
	LockEvidenceExpiration      int64  `json:"lockEvidenceExpiration"`
	CommitFinalClaim            string `json:"commitFinalClaim"`
	CommitFinalFormat           string `json:"commitFinalFormat"`
	CommitAcknowledgementClaim  string `json:"commitAcknowledgementClaim"`
	CommitAcknowledgementFormat string `json:"commitAcknowledgementFormat"`

	AssetLocked  bool `json:"assetLocked"`
	AssetDeleted bool `json:"assetDeleted"`
	AssetCreated bool `json:"assetCreated"`

	RollbackActions []RollbackAction `json:"rollbackActions"`
	RollbackProofs  []string         `json:"rollbackProofs"`

	// RollbackPending is set on a source session rolled back before the
	// counterpart acknowledged the Rollback message.
	RollbackPending bool `json:"rollbackPending"`

	LastMessageReceivedTimestamp int64 `json:"lastMessageReceivedTimestamp"`
}

// NewSessionData returns an active session with empty bookkeeping.
func NewSessionData(id string, role Role) *SessionData {
	return &SessionData{
		ID:         id,
		Role:       role,
		Status:     Active,
		Step:       StepNone,
		Hashes:     make(map[odap.MessageType]string),
		Signatures: make(map[odap.MessageType]string),
		Replies:    make(map[odap.MessageType]string),
	}
}

// Clone returns a deep copy of the session.
func (s *SessionData) Clone() *SessionData {
	c := *s

	c.Hashes = make(map[odap.MessageType]string, len(s.Hashes))
	for k, v := range s.Hashes {
		c.Hashes[k] = v
	}

	c.Signatures = make(map[odap.MessageType]string, len(s.Signatures))
	for k, v := range s.Signatures {
		c.Signatures[k] = v
	}

	c.Replies = make(map[odap.MessageType]string, len(s.Replies))
	for k, v := range s.Replies {
		c.Replies[k] = v
	}

	if s.RollbackActions != nil {
		c.RollbackActions = make([]RollbackAction, len(s.RollbackActions))
		copy(c.RollbackActions, s.RollbackActions)
	}
	if s.RollbackProofs != nil {
		c.RollbackProofs = make([]string, len(s.RollbackProofs))
		copy(c.RollbackProofs, s.RollbackProofs)
	}

	return &c
}

// Hash returns the stored digest of the message of type t.
func (s *SessionData) Hash(t odap.MessageType) string {
	return s.Hashes[t]
}

// Signature returns the stored signature of the message of type t.
func (s *SessionData) Signature(t odap.MessageType) string {
	return s.Signatures[t]
}

// SetHash stores the digest of the message of type t. A digest cannot be
// replaced by a different one.
func (s *SessionData) SetHash(t odap.MessageType, hash string) error {
	if s.Hashes == nil {
		s.Hashes = make(map[odap.MessageType]string)
	}
	if prev, ok := s.Hashes[t]; ok && prev != hash {
		return fmt.Errorf("hash of %s already set", t)
	}
	s.Hashes[t] = hash
	return nil
}

// SetSignature stores the signature of the message of type t. A signature
// cannot be replaced by a different one.
func (s *SessionData) SetSignature(t odap.MessageType, sig string) error {
	if s.Signatures == nil {
		s.Signatures = make(map[odap.MessageType]string)
	}
	if prev, ok := s.Signatures[t]; ok && prev != sig {
		return fmt.Errorf("signature of %s already set", t)
	}
	s.Signatures[t] = sig
	return nil
}

// Reply returns the encoded response of type t issued in the session.
func (s *SessionData) Reply(t odap.MessageType) (string, bool) {
	r, ok := s.Replies[t]
	return r, ok
}

// SetReply records the encoded response of type t.
func (s *SessionData) SetReply(t odap.MessageType, raw string) {
	if s.Replies == nil {
		s.Replies = make(map[odap.MessageType]string)
	}
	s.Replies[t] = raw
}

// Advance moves the session to step. Steps only increase.
func (s *SessionData) Advance(step Step) error {
	if step <= s.Step {
		return fmt.Errorf("cannot move from %s to %s", s.Step, step)
	}
	s.Step = step
	return nil
}

// Closed reports whether the session reached a terminal status.
func (s *SessionData) Closed() bool {
	return s.Status == Completed || s.Status == Aborted
}

// HasRollback reports whether an action of the given kind was recorded.
func (s *SessionData) HasRollback(kind ActionKind) bool {
	for _, a := range s.RollbackActions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// RecordRollback appends an action to the rollback log.
func (s *SessionData) RecordRollback(a RollbackAction) {
	s.RollbackActions = append(s.RollbackActions, a)
	if a.ProofHash != "" {
		s.RollbackProofs = append(s.RollbackProofs, a.ProofHash)
	}
}

// PinnedPubKey returns the pinned key of the gateway playing role r.
func (s *SessionData) PinnedPubKey(r Role) string {
	if r == Source {
		return s.SourceGatewayPubKey
	}
	return s.RecipientGatewayPubKey
}

// CounterpartAddr returns the network address of the other gateway.
func (s *SessionData) CounterpartAddr() string {
	if s.Role == Source {
		return s.RecipientGatewayAddr
	}
	return s.SourceGatewayAddr
}

// Marshal returns the canonical encoding of the session. Audit log snapshots
// and badger records use this form.
func (s *SessionData) Marshal() ([]byte, error) {
	return crypto.CanonicalJSON(s)
}

// Unmarshal ...
func (s *SessionData) Unmarshal(data []byte) error {
	if err := crypto.DecodeJSON(data, s); err != nil {
		return err
	}
	if s.Hashes == nil {
		s.Hashes = make(map[odap.MessageType]string)
	}
	if s.Signatures == nil {
		s.Signatures = make(map[odap.MessageType]string)
	}
	if s.Replies == nil {
		s.Replies = make(map[odap.MessageType]string)
	}
	return nil
}
