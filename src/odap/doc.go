// Package odap defines the messages exchanged by two gateways during an asset
// transfer, and the primitives that sign, verify and chain them.
//
// A transfer is a sequence of request/response pairs. Every message embeds a
// Header carrying its type tag, the session identifier, a sequence number, the
// identity keys of both gateways, the digest of the previous message in the
// chain, and the sender's signature:
//
//  TransferInitializationRequest   -> TransferInitializationResponse
//  TransferCommenceRequest         -> TransferCommenceResponse
//  LockEvidenceRequest             -> LockEvidenceResponse
//  CommitPreparationRequest        -> CommitPreparationResponse
//  CommitFinalRequest              -> CommitFinalResponse
//  TransferCompleteRequest
//
// Recovery adds RecoverMessage, RecoverUpdateMessage, RecoverSuccessMessage,
// RollbackMessage and RollbackAckMessage.
package odap
