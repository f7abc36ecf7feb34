package net

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/pkg/errors"
)

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID as
// the ID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport implements the Transport interface, to allow gateways to be
// tested in-memory without going over a network. Requests and responses are
// copied through the wire encoding so that the two sides never share memory.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdown   bool
}

// NewInmemTransport is used to initialize a new transport and generates a
// random local address if none is specified.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    time.Second,
	}
	return addr, trans
}

// SetTimeout changes the time an RPC waits for its response.
func (i *InmemTransport) SetTimeout(timeout time.Duration) {
	i.Lock()
	defer i.Unlock()
	i.timeout = timeout
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// TransferInitialization implements the Transport interface.
func (i *InmemTransport) TransferInitialization(target string, args *odap.TransferInitializationRequest, resp *odap.TransferInitializationResponse) error {
	return i.makeRPC(target, args, resp)
}

// TransferCommence implements the Transport interface.
func (i *InmemTransport) TransferCommence(target string, args *odap.TransferCommenceRequest, resp *odap.TransferCommenceResponse) error {
	return i.makeRPC(target, args, resp)
}

// LockEvidence implements the Transport interface.
func (i *InmemTransport) LockEvidence(target string, args *odap.LockEvidenceRequest, resp *odap.LockEvidenceResponse) error {
	return i.makeRPC(target, args, resp)
}

// CommitPreparation implements the Transport interface.
func (i *InmemTransport) CommitPreparation(target string, args *odap.CommitPreparationRequest, resp *odap.CommitPreparationResponse) error {
	return i.makeRPC(target, args, resp)
}

// CommitFinal implements the Transport interface.
func (i *InmemTransport) CommitFinal(target string, args *odap.CommitFinalRequest, resp *odap.CommitFinalResponse) error {
	return i.makeRPC(target, args, resp)
}

// TransferComplete implements the Transport interface.
func (i *InmemTransport) TransferComplete(target string, args *odap.TransferCompleteRequest, resp *odap.Ack) error {
	return i.makeRPC(target, args, resp)
}

// Recover implements the Transport interface.
func (i *InmemTransport) Recover(target string, args *odap.RecoverMessage, resp *odap.RecoverUpdateMessage) error {
	return i.makeRPC(target, args, resp)
}

// RecoverSuccess implements the Transport interface.
func (i *InmemTransport) RecoverSuccess(target string, args *odap.RecoverSuccessMessage, resp *odap.Ack) error {
	return i.makeRPC(target, args, resp)
}

// Rollback implements the Transport interface.
func (i *InmemTransport) Rollback(target string, args *odap.RollbackMessage, resp *odap.RollbackAckMessage) error {
	return i.makeRPC(target, args, resp)
}

// isShutdown ...
func (i *InmemTransport) isShutdown() bool {
	i.RLock()
	defer i.RUnlock()
	return i.shutdown
}

func (i *InmemTransport) makeRPC(target string, args interface{}, resp interface{}) error {
	i.RLock()
	peer, ok := i.peers[target]
	timeout := i.timeout
	shutdown := i.shutdown
	i.RUnlock()

	if shutdown {
		return ErrTransportShutdown
	}

	if !ok || peer.isShutdown() {
		return errors.Wrapf(ErrUnreachable, "failed to connect to peer %s", target)
	}

	cmd, err := copyThroughWire(args)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	timer := time.After(timeout)

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: cmd, RespChan: respCh}:
	case <-timer:
		return ErrTimeout
	}

	// Wait for a response
	select {
	case rpcResp := <-respCh:
		if rpcResp.Error != nil {
			return newWireError(rpcResp.Error).remote(target)
		}

		raw, err := crypto.CanonicalJSON(rpcResp.Response)
		if err != nil {
			return errors.Wrap(err, "encoding response")
		}
		return crypto.DecodeJSON(raw, resp)
	case <-timer:
		return ErrTimeout
	}
}

// copyThroughWire returns a new value of the same type as the pointer v,
// obtained by encoding and decoding v.
func copyThroughWire(v interface{}) (interface{}, error) {
	raw, err := crypto.CanonicalJSON(v)
	if err != nil {
		return nil, err
	}

	c := reflect.New(reflect.TypeOf(v).Elem()).Interface()
	if err := crypto.DecodeJSON(raw, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect is used to connect this transport to another transport for a given
// peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport. Peers that still route
// to it get ErrUnreachable.
func (i *InmemTransport) Close() error {
	i.DisconnectAll()

	i.Lock()
	defer i.Unlock()
	i.shutdown = true

	return nil
}

// Listen is an empty function as there is no need to defer initialisation of
// the InMem service.
func (i *InmemTransport) Listen() {
}
