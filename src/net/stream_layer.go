package net

import (
	"net"
	"time"
)

// StreamLayer gives the NetworkTransport its connections: the listener that
// accepts counterpart gateways, and the dialer used to reach them.
type StreamLayer interface {
	net.Listener

	// Dial opens a connection to the gateway at address.
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address counterparts dial to reach this gateway.
	// It is the address sessions record as their source or recipient.
	AdvertiseAddr() string
}

// TCPStreamLayer is the StreamLayer of gateways talking plain TCP.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// listenTCP binds bindAddr and checks that the address given to counterparts,
// advertise or the bound one, can be dialed.
func listenTCP(bindAddr, advertise string) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	var addr net.Addr = list.Addr()
	if advertise != "" {
		if addr, err = net.ResolveTCPAddr("tcp", advertise); err != nil {
			list.Close()
			return nil, err
		}
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		list.Close()
		return nil, errNotAdvertisable
	}

	return &TCPStreamLayer{
		advertise: advertise,
		listener:  list.(*net.TCPListener),
	}, nil
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// Accept waits for the next counterpart connection.
func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

// Close stops accepting counterparts. Connections already accepted are left
// to the transport.
func (t *TCPStreamLayer) Close() error {
	return t.listener.Close()
}

// Addr returns the bound address.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the StreamLayer interface. Without an advertise
// address the bound one is used.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}
