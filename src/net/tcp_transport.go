package net

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// NewTCPTransport returns a NetworkTransport over plain TCP, bound to
// bindAddr. Counterparts reach the gateway at advertise, or at the bound
// address when advertise is empty; it must not be an unspecified address.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := listenTCP(bindAddr, advertise)
	if err != nil {
		return nil, err
	}

	return NewNetworkTransport(stream, maxPool, timeout, logger), nil
}
