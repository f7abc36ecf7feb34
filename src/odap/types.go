package odap

// MessageType is the URN tag that identifies a protocol message.
type MessageType string

const (
	typePrefix = "urn:ietf:odap:msgtype:"

	TypeInitRequest           MessageType = typePrefix + "init-transfer-msg"
	TypeInitResponse          MessageType = typePrefix + "init-transfer-ack-msg"
	TypeCommenceRequest       MessageType = typePrefix + "transfer-commence-msg"
	TypeCommenceResponse      MessageType = typePrefix + "transfer-commence-ack-msg"
	TypeLockEvidenceRequest   MessageType = typePrefix + "lock-evidence-req-msg"
	TypeLockEvidenceResponse  MessageType = typePrefix + "lock-evidence-ack-msg"
	TypeCommitPrepareRequest  MessageType = typePrefix + "commit-prepare-msg"
	TypeCommitPrepareResponse MessageType = typePrefix + "commit-ack-msg"
	TypeCommitFinalRequest    MessageType = typePrefix + "commit-final-msg"
	TypeCommitFinalResponse   MessageType = typePrefix + "commit-final-ack-msg"
	TypeTransferComplete      MessageType = typePrefix + "commit-transfer-complete-msg"
	TypeRecover               MessageType = typePrefix + "recover-msg"
	TypeRecoverUpdate         MessageType = typePrefix + "recover-update-msg"
	TypeRecoverSuccess        MessageType = typePrefix + "recover-success-msg"
	TypeRollback              MessageType = typePrefix + "rollback-msg"
	TypeRollbackAck           MessageType = typePrefix + "rollback-ack-msg"
)

// Phase tags a protocol phase in the audit log.
type Phase string

const (
	PhaseInitialization Phase = "validate"
	PhaseCommence       Phase = "commence"
	PhaseLock           Phase = "lock"
	PhasePrepare        Phase = "prepare"
	PhaseFinal          Phase = "final"
	PhaseComplete       Phase = "complete"
	PhaseRecovery       Phase = "recovery"
)

// Stage tags the position of an audit entry within a phase.
type Stage string

const (
	// StageInit is written by the sender before a request leaves.
	StageInit Stage = "init"
	// StageExec is written by the receiver before it validates a message.
	StageExec Stage = "exec"
	// StageDone is written by the receiver once the message is accepted.
	StageDone Stage = "done"
	// StageAck is written by the responder before its reply leaves.
	StageAck Stage = "ack"
)

// PhaseOf returns the phase a message type belongs to.
func PhaseOf(t MessageType) Phase {
	switch t {
	case TypeInitRequest, TypeInitResponse:
		return PhaseInitialization
	case TypeCommenceRequest, TypeCommenceResponse:
		return PhaseCommence
	case TypeLockEvidenceRequest, TypeLockEvidenceResponse:
		return PhaseLock
	case TypeCommitPrepareRequest, TypeCommitPrepareResponse:
		return PhasePrepare
	case TypeCommitFinalRequest, TypeCommitFinalResponse:
		return PhaseFinal
	case TypeTransferComplete:
		return PhaseComplete
	default:
		return PhaseRecovery
	}
}

// AssetProfile describes the asset being transferred. ExpirationDate is a
// unix timestamp in milliseconds; zero means the profile never expires.
type AssetProfile struct {
	Issuer         string `json:"issuer,omitempty"`
	AssetCode      string `json:"assetCode,omitempty"`
	ExpirationDate int64  `json:"expirationDate"`
}

// Expired reports whether the profile has expired at time now (unix ms).
func (a AssetProfile) Expired(now int64) bool {
	return a.ExpirationDate != 0 && a.ExpirationDate <= now
}

// PayloadProfile groups the asset profile and the capabilities of the
// transfer.
type PayloadProfile struct {
	AssetProfile AssetProfile `json:"assetProfile"`
	Capabilities string       `json:"capabilities"`
}
