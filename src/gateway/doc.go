// Package gateway implements the protocol engine of a SATP gateway.
//
// A Gateway plays the source role (client) for the transfers it starts and
// the destination role (server) for the transfers it receives. A transfer is
// a session that goes through six phases: Transfer Initialization, Transfer
// Commence, Lock Evidence, Commit Preparation, Commit Final and Transfer
// Complete. Every message of a session is signed by its sender and embeds the
// digest of the previous one.
//
// Source side
//
// ConfigureSession records the parameters of a transfer. The New* factories
// build, sign and record the request of a phase; the Send* variants dispatch
// it to the counterpart, retrying lost exchanges, and validate the response.
// RunTransfer drives a session from its current step to completion. Before
// Lock Evidence the asset is locked on the source ledger (LockAsset), and
// before Commit Final it is deleted (DeleteAsset). Both operations store a
// signed proof in the claim store.
//
// Destination side
//
// Run consumes the RPCs delivered by the transport. Each request goes through
// the same checks, in order: the session is open and expects this message, the
// sequence number follows the last one, the previous hash matches, the keys
// are the pinned ones, the signature verifies, and finally the checks proper
// to the phase. On Commit Final the asset is created on the destination ledger
// (CreateAsset) and its claim returned to the source.
//
// Audit log
//
// Every transition writes to the audit log before the session store commits
// it. RecoverOpenSessions uses the latest snapshot of each open session to
// resume it or to roll it back, depending on what the counterpart reports.
package gateway
