package peers

import (
	"bytes"
	"encoding/json"
)

//PeerSet is the set of counterparts known to a gateway
type PeerSet struct {
	Peers     []*Peer          `json:"peers"`
	ByPubKey  map[string]*Peer `json:"-"`
	ByMoniker map[string]*Peer `json:"-"`
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. When two peers share
//a moniker, the first one wins the lookup by moniker.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey:  make(map[string]*Peer),
		ByMoniker: make(map[string]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		if _, ok := peerSet.ByMoniker[peer.Moniker]; !ok && peer.Moniker != "" {
			peerSet.ByMoniker[peer.Moniker] = peer
		}
	}

	peerSet.Peers = peers

	return peerSet
}

//NewPeerSetFromPeerSliceBytes creates a new PeerSet from a peerSlice in Bytes format
func NewPeerSetFromPeerSliceBytes(peerSliceBytes []byte) (*PeerSet, error) {
	peers := []*Peer{}

	b := bytes.NewBuffer(peerSliceBytes)
	dec := json.NewDecoder(b)

	err := dec.Decode(&peers)
	if err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

//WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := peerSet.Peers

	//don't add it if it already exists
	if _, ok := peerSet.ByPubKey[peer.PubKeyString()]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

//WithRemovedPeer returns a new PeerSet with a list of peers excluding the
//provided one
func (peerSet *PeerSet) WithRemovedPeer(peer *Peer) *PeerSet {
	_, peers := ExcludePeer(peerSet.Peers, peer.PubKeyHex)
	return NewPeerSet(peers)
}

// Lookup returns the peer with the given moniker or public key.
func (peerSet *PeerSet) Lookup(name string) (*Peer, bool) {
	if p, ok := peerSet.ByMoniker[name]; ok {
		return p, true
	}
	p, ok := peerSet.ByPubKey[(&Peer{PubKeyHex: name}).PubKeyString()]
	return p, ok
}

// Fronting returns the peers that front the DLT system dlt.
func (peerSet *PeerSet) Fronting(dlt string) []*Peer {
	res := []*Peer{}
	for _, p := range peerSet.Peers {
		if p.Fronts(dlt) {
			res = append(res, p)
		}
	}
	return res
}

/* ToSlice Methods */

//PubKeys returns the PeerSet's slice of public keys
func (peerSet *PeerSet) PubKeys() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.PubKeyString())
	}

	return res
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByPubKey)
}

//Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
