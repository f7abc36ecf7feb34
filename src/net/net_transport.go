package net

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/odap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	rpcTransferInitialization uint8 = iota
	rpcTransferCommence
	rpcLockEvidence
	rpcCommitPreparation
	rpcCommitFinal
	rpcTransferComplete
	rpcRecover
	rpcRecoverSuccess
	rpcRollback
)

const (
	bufSize = 64 * 1024
)

/*
NetworkTransport provides a network based transport that can be used to
communicate with gateways on remote machines. It requires an underlying stream
layer to provide a stream abstraction, which can be simple TCP, TLS, etc.

This transport is very simple and lightweight. Each RPC request is framed by
sending a byte that indicates the message type, followed by the json encoded
request.

The response is an error string followed by the response object, both are
encoded with the canonical json handle.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan RPC),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "dialing %s: %v", target, err)
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	// Setup encoder/decoders
	netConn.dec = codec.NewDecoder(netConn.r, crypto.WireHandle())
	netConn.enc = codec.NewEncoder(netConn.w, crypto.WireHandle())

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// TransferInitialization implements the Transport interface.
func (n *NetworkTransport) TransferInitialization(target string, args *odap.TransferInitializationRequest, resp *odap.TransferInitializationResponse) error {
	return n.genericRPC(target, rpcTransferInitialization, args, resp)
}

// TransferCommence implements the Transport interface.
func (n *NetworkTransport) TransferCommence(target string, args *odap.TransferCommenceRequest, resp *odap.TransferCommenceResponse) error {
	return n.genericRPC(target, rpcTransferCommence, args, resp)
}

// LockEvidence implements the Transport interface.
func (n *NetworkTransport) LockEvidence(target string, args *odap.LockEvidenceRequest, resp *odap.LockEvidenceResponse) error {
	return n.genericRPC(target, rpcLockEvidence, args, resp)
}

// CommitPreparation implements the Transport interface.
func (n *NetworkTransport) CommitPreparation(target string, args *odap.CommitPreparationRequest, resp *odap.CommitPreparationResponse) error {
	return n.genericRPC(target, rpcCommitPreparation, args, resp)
}

// CommitFinal implements the Transport interface.
func (n *NetworkTransport) CommitFinal(target string, args *odap.CommitFinalRequest, resp *odap.CommitFinalResponse) error {
	return n.genericRPC(target, rpcCommitFinal, args, resp)
}

// TransferComplete implements the Transport interface.
func (n *NetworkTransport) TransferComplete(target string, args *odap.TransferCompleteRequest, resp *odap.Ack) error {
	return n.genericRPC(target, rpcTransferComplete, args, resp)
}

// Recover implements the Transport interface.
func (n *NetworkTransport) Recover(target string, args *odap.RecoverMessage, resp *odap.RecoverUpdateMessage) error {
	return n.genericRPC(target, rpcRecover, args, resp)
}

// RecoverSuccess implements the Transport interface.
func (n *NetworkTransport) RecoverSuccess(target string, args *odap.RecoverSuccessMessage, resp *odap.Ack) error {
	return n.genericRPC(target, rpcRecoverSuccess, args, resp)
}

// Rollback implements the Transport interface.
func (n *NetworkTransport) Rollback(target string, args *odap.RollbackMessage, resp *odap.RollbackAckMessage) error {
	return n.genericRPC(target, rpcRollback, args, resp)
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	// Get a conn
	conn, err := n.getConn(target, n.timeout)
	if err != nil {
		return err
	}

	// Set a deadline
	if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, rpcType, args); err != nil {
		return mapIOError(target, err)
	}

	// Decode the response
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}

	if err != nil {
		if _, ok := err.(*RemoteError); ok {
			return err
		}
		return mapIOError(target, err)
	}

	return nil
}

// mapIOError classifies a connection error as a timeout or a lost target.
func mapIOError(target string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.Wrapf(ErrTimeout, "%s", target)
	}
	return errors.Wrapf(ErrUnreachable, "%s: %v", target, err)
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	// Write the request type
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	// Send the request
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	// Decode the error if any
	var rpcError wireError
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError.Message != "" {
		return true, rpcError.remote(conn.target)
	}
	return true, nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"gateway": conn.LocalAddr(),
			"from":    conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := codec.NewDecoder(r, crypto.WireHandle())
	enc := codec.NewEncoder(w, crypto.WireHandle())

	for {
		if err := n.handleCommand(r, dec, enc); err != nil {

			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming command")
			} else {
				if err != io.EOF {
					n.logger.WithField("error", err).Error("Failed to decode incoming command")
				}
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// newCommand returns an empty request of the given rpc type.
func newCommand(rpcType uint8) (interface{}, error) {
	switch rpcType {
	case rpcTransferInitialization:
		return new(odap.TransferInitializationRequest), nil
	case rpcTransferCommence:
		return new(odap.TransferCommenceRequest), nil
	case rpcLockEvidence:
		return new(odap.LockEvidenceRequest), nil
	case rpcCommitPreparation:
		return new(odap.CommitPreparationRequest), nil
	case rpcCommitFinal:
		return new(odap.CommitFinalRequest), nil
	case rpcTransferComplete:
		return new(odap.TransferCompleteRequest), nil
	case rpcRecover:
		return new(odap.RecoverMessage), nil
	case rpcRecoverSuccess:
		return new(odap.RecoverSuccessMessage), nil
	case rpcRollback:
		return new(odap.RollbackMessage), nil
	default:
		return nil, fmt.Errorf("unknown rpc type %d", rpcType)
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(r *bufio.Reader, dec *codec.Decoder, enc *codec.Encoder) error {
	// Get the rpc type
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		RespChan: respCh,
	}

	// Decode the command
	cmd, err := newCommand(rpcType)
	if err != nil {
		return err
	}
	if err := dec.Decode(cmd); err != nil {
		return err
	}
	rpc.Command = cmd

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	// Wait for response
	select {
	case resp := <-respCh:
		// Send the error first
		respErr := newWireError(resp.Error)
		if err := enc.Encode(respErr); err != nil {
			return err
		}

		// Send the response
		if err := enc.Encode(resp.Response); err != nil {
			return err
		}
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	return nil
}
