package keys

import (
	"crypto/ecdsa"
	"fmt"
)

// Identity binds a gateway's public key to the signing capability of its
// private key. The private key is not exported: an Identity prints, and
// encodes, as its public key only.
type Identity struct {
	key    *ecdsa.PrivateKey
	pubHex string
}

// NewIdentity wraps a private key.
func NewIdentity(key *ecdsa.PrivateKey) *Identity {
	return &Identity{
		key:    key,
		pubHex: PublicKeyHex(&key.PublicKey),
	}
}

// GenerateIdentity creates an Identity around a fresh key.
func GenerateIdentity() (*Identity, error) {
	key, err := GenerateECDSAKey()
	if err != nil {
		return nil, err
	}
	return NewIdentity(key), nil
}

// PublicKeyHex returns the pinned form of the public key.
func (i *Identity) PublicKeyHex() string {
	return i.pubHex
}

// PublicKey returns the public half of the key-pair.
func (i *Identity) PublicKey() *ecdsa.PublicKey {
	return &i.key.PublicKey
}

// Sign signs a digest.
func (i *Identity) Sign(digest []byte) (string, error) {
	return Sign(i.key, digest)
}

// String implements fmt.Stringer.
func (i *Identity) String() string {
	return fmt.Sprintf("Identity(%s)", i.pubHex)
}

// MarshalJSON keeps the private key out of any encoded structure.
func (i *Identity) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", i.pubHex)), nil
}
