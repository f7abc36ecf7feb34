package net

import "github.com/mosaicnetworks/satp/src/odap"

// Transport provides an interface for network transports to allow a gateway
// to communicate with its counterparts.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other
	// gateways can reach us
	AdvertiseAddr() string

	TransferInitialization(target string, args *odap.TransferInitializationRequest, resp *odap.TransferInitializationResponse) error

	TransferCommence(target string, args *odap.TransferCommenceRequest, resp *odap.TransferCommenceResponse) error

	LockEvidence(target string, args *odap.LockEvidenceRequest, resp *odap.LockEvidenceResponse) error

	CommitPreparation(target string, args *odap.CommitPreparationRequest, resp *odap.CommitPreparationResponse) error

	CommitFinal(target string, args *odap.CommitFinalRequest, resp *odap.CommitFinalResponse) error

	TransferComplete(target string, args *odap.TransferCompleteRequest, resp *odap.Ack) error

	Recover(target string, args *odap.RecoverMessage, resp *odap.RecoverUpdateMessage) error

	RecoverSuccess(target string, args *odap.RecoverSuccessMessage, resp *odap.Ack) error

	Rollback(target string, args *odap.RollbackMessage, resp *odap.RollbackAckMessage) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
