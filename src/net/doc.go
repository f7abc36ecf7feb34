// Package net implements the transports gateways use to exchange protocol
// messages.
//
// A Transport carries one typed RPC per protocol exchange (TransferInitialization,
// TransferCommence, LockEvidence, CommitPreparation, CommitFinal,
// TransferComplete) plus the crash recovery exchanges (Recover, RecoverSuccess,
// Rollback). Incoming requests are delivered on the Consumer channel and
// answered with RPC.Respond.
//
// There are two implementations:
//
// - Inmem: in-memory transport used for testing and single-process demos
//
// - TCP: communicating over plain TCP
//
// Errors
//
// An RPC fails in one of two ways. If the counterpart received the request
// and refused it, the error is a *RemoteError carrying the counterpart's
// message, and the kind and detail of its error when it is Classified;
// retrying the same request is pointless. Otherwise the request or
// its response was lost: the error wraps ErrTimeout, ErrUnreachable or
// ErrTransportShutdown, and the caller may retry.
//
// TCP
//
// Each RPC request is framed by a byte that indicates the message type,
// followed by the JSON encoded request. The response is an error record (kind,
// detail and message, empty on success) followed by the JSON encoded response. Messages are encoded with the same canonical
// handle used to hash them.
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the gateway binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other
// gateways. If BindAddr is a local address not reachable by other gateways, it
// is useful to set AdvertiseAddr to the reachable public address.
package net
