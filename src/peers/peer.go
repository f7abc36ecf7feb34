package peers

import (
	"strings"

	"github.com/mosaicnetworks/satp/src/common"
)

// Peer is a counterpart gateway.
type Peer struct {
	NetAddr    string
	PubKeyHex  string
	Moniker    string
	DLTSystems []string
}

// NewPeer ...
func NewPeer(pubKeyHex, netAddr, moniker string, dltSystems ...string) *Peer {
	return &Peer{
		PubKeyHex:  pubKeyHex,
		NetAddr:    netAddr,
		Moniker:    moniker,
		DLTSystems: dltSystems,
	}
}

// PubKeyString returns the upper-case version of PubKeyHex. It is used for
// indexing in maps with string keys.
func (p *Peer) PubKeyString() string {
	return strings.ToUpper(p.PubKeyHex)
}

// PubKeyBytes decodes the public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// Fronts reports whether the peer fronts the DLT system dlt.
func (p *Peer) Fronts(dlt string) bool {
	for _, d := range p.DLTSystems {
		if d == dlt {
			return true
		}
	}
	return false
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, pubKey string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.PubKeyString() != strings.ToUpper(pubKey) {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
