package odap

import "github.com/mosaicnetworks/satp/src/claims"

// Header is embedded in every protocol message. For requests the signature is
// produced by the client (source) gateway, for responses by the server
// (destination) gateway.
type Header struct {
	MessageType          MessageType `json:"messageType"`
	SessionID            string      `json:"sessionID"`
	SequenceNumber       int64       `json:"sequenceNumber"`
	ClientIdentityPubKey string      `json:"clientIdentityPubkey"`
	ServerIdentityPubKey string      `json:"serverIdentityPubkey"`
	HashPrevMessage      string      `json:"hashPrevMessage,omitempty"`
	Signature            string      `json:"signature"`
}

// GetHeader gives access to the header of any message embedding it.
func (h *Header) GetHeader() *Header {
	return h
}

// Message is implemented by every protocol message.
type Message interface {
	GetHeader() *Header
}

// SignedByClient reports whether messages of type t are signed by the client
// gateway.
func (t MessageType) SignedByClient() bool {
	switch t {
	case TypeInitRequest,
		TypeCommenceRequest,
		TypeLockEvidenceRequest,
		TypeCommitPrepareRequest,
		TypeCommitFinalRequest,
		TypeTransferComplete,
		TypeRecover,
		TypeRecoverSuccess,
		TypeRollback:
		return true
	}
	return false
}

// SenderPubKey returns the key that must have signed the message.
func SenderPubKey(m Message) string {
	h := m.GetHeader()
	if h.MessageType.SignedByClient() {
		return h.ClientIdentityPubKey
	}
	return h.ServerIdentityPubKey
}

/*******************************************************************************
* Transfer Initialization
*******************************************************************************/

// TransferInitializationRequest opens a session on the destination gateway.
// It carries every parameter negotiated for the transfer.
type TransferInitializationRequest struct {
	Header

	Version                   string         `json:"version"`
	LoggingProfile            string         `json:"loggingProfile"`
	AccessControlProfile      string         `json:"accessControlProfile"`
	ApplicationProfile        string         `json:"applicationProfile"`
	PayloadProfile            PayloadProfile `json:"payloadProfile"`
	OriginatorPubKey          string         `json:"originatorPubkey"`
	BeneficiaryPubKey         string         `json:"beneficiaryPubkey"`
	SourceGatewayDLTSystem    string         `json:"sourceGatewayDltSystem"`
	RecipientGatewayDLTSystem string         `json:"recipientGatewayDltSystem"`
	SourceLedgerAssetID       string         `json:"sourceLedgerAssetID"`
	RecipientLedgerAssetID    string         `json:"recipientLedgerAssetID"`
	SourceGatewayAddr         string         `json:"sourceGatewayAddr"`
	MaxRetries                int            `json:"maxRetries"`
	MaxTimeout                int64          `json:"maxTimeout"`
	Timestamp                 int64          `json:"timestamp"`
}

// TransferInitializationResponse acknowledges the session.
type TransferInitializationResponse struct {
	Header

	Timestamp          int64 `json:"timestamp"`
	ProcessedTimestamp int64 `json:"processedTimestamp"`
}

/*******************************************************************************
* Transfer Commence
*******************************************************************************/

// TransferCommenceRequest binds the transfer to the hash of the asset profile.
type TransferCommenceRequest struct {
	Header

	OriginatorPubKey          string `json:"originatorPubkey"`
	BeneficiaryPubKey         string `json:"beneficiaryPubkey"`
	SourceGatewayDLTSystem    string `json:"senderDltSystem"`
	RecipientGatewayDLTSystem string `json:"recipientDltSystem"`
	HashAssetProfile          string `json:"hashAssetProfile"`
	Timestamp                 int64  `json:"timestamp"`
}

// TransferCommenceResponse ...
type TransferCommenceResponse struct {
	Header

	Timestamp int64 `json:"timestamp"`
}

/*******************************************************************************
* Lock Evidence
*******************************************************************************/

// LockEvidenceRequest carries the claim proving the asset is locked on the
// source ledger, with the proof the source gateway signed for it. The
// receiver keeps the proof in its own claim store.
type LockEvidenceRequest struct {
	Header

	LockEvidenceClaim      string       `json:"lockEvidenceClaim"`
	LockEvidenceFormat     string       `json:"lockEvidenceFormat"`
	LockEvidenceExpiration int64        `json:"lockEvidenceExpiration"`
	LockEvidenceProof      claims.Proof `json:"lockEvidenceProof"`
	Timestamp              int64        `json:"timestamp"`
}

// LockEvidenceResponse ...
type LockEvidenceResponse struct {
	Header

	Timestamp int64 `json:"timestamp"`
}

/*******************************************************************************
* Commit Preparation
*******************************************************************************/

// CommitPreparationRequest ...
type CommitPreparationRequest struct {
	Header

	Timestamp int64 `json:"timestamp"`
}

// CommitPreparationResponse ...
type CommitPreparationResponse struct {
	Header

	Timestamp int64 `json:"timestamp"`
}

/*******************************************************************************
* Commit Final
*******************************************************************************/

// CommitFinalRequest carries the claim proving the asset was deleted from the
// source ledger, and its signed proof.
type CommitFinalRequest struct {
	Header

	CommitFinalClaim  string       `json:"commitFinalClaim"`
	CommitFinalFormat string       `json:"commitFinalClaimFormat"`
	CommitFinalProof  claims.Proof `json:"commitFinalProof"`
	Timestamp         int64        `json:"timestamp"`
}

// CommitFinalResponse carries the claim proving the asset was created on the
// destination ledger, and its signed proof.
type CommitFinalResponse struct {
	Header

	CommitAcknowledgementClaim  string       `json:"commitAcknowledgementClaim"`
	CommitAcknowledgementFormat string       `json:"commitAcknowledgementClaimFormat"`
	CommitAcknowledgementProof  claims.Proof `json:"commitAcknowledgementProof"`
	Timestamp                   int64        `json:"timestamp"`
}

/*******************************************************************************
* Transfer Complete
*******************************************************************************/

// TransferCompleteRequest closes the session. It has no protocol response;
// the transport acknowledges it with an Ack.
type TransferCompleteRequest struct {
	Header

	HashTransferInitialization string `json:"hashTransferInitialization"`
	Timestamp                  int64  `json:"timestamp"`
}

// Ack is the transport level acknowledgement of messages without a protocol
// response.
type Ack struct {
	SessionID string `json:"sessionID"`
	Accepted  bool   `json:"accepted"`
}

/*******************************************************************************
* Recovery
*******************************************************************************/

// RecoverMessage is sent by a restarted source gateway to learn the state of
// a session on the counterpart. SequenceNumber is the sender's last sequence
// number.
type RecoverMessage struct {
	Header

	IsBackup  bool  `json:"isBackup"`
	Timestamp int64 `json:"timestamp"`
}

// RecoverUpdateMessage answers a RecoverMessage with the counterpart's view of
// the session. SequenceNumber is the responder's last sequence number.
type RecoverUpdateMessage struct {
	Header

	Status       string `json:"status"`
	Step         int    `json:"step"`
	AssetCreated bool   `json:"assetCreated"`
	Timestamp    int64  `json:"timestamp"`
}

// RecoverSuccessMessage tells the counterpart that the sender resumes the
// session.
type RecoverSuccessMessage struct {
	Header

	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

// RollbackMessage tells the counterpart that the sender reversed its ledger
// actions and aborted the session.
type RollbackMessage struct {
	Header

	Reason    string   `json:"reason"`
	Actions   []string `json:"actions"`
	Proofs    []string `json:"proofs"`
	Timestamp int64    `json:"timestamp"`
}

// RollbackAckMessage reports the actions the counterpart reversed in turn.
type RollbackAckMessage struct {
	Header

	Success   bool     `json:"success"`
	Actions   []string `json:"actions"`
	Proofs    []string `json:"proofs"`
	Timestamp int64    `json:"timestamp"`
}
