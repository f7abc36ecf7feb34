package odap

import (
	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
	"github.com/pkg/errors"
)

// Signer is the signing capability of a gateway identity.
type Signer interface {
	PublicKeyHex() string
	Sign(digest []byte) (string, error)
}

// signingBytes returns the canonical encoding of m with its signature cleared.
// The message is restored before returning.
func signingBytes(m Message) ([]byte, error) {
	h := m.GetHeader()
	sig := h.Signature
	h.Signature = ""
	defer func() { h.Signature = sig }()

	return crypto.CanonicalJSON(m)
}

// Sign signs m with s and sets the signature field.
func Sign(m Message, s Signer) error {
	b, err := signingBytes(m)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}

	sig, err := s.Sign(crypto.SHA256(b))
	if err != nil {
		return errors.Wrap(err, "signing message")
	}

	m.GetHeader().Signature = sig

	return nil
}

// Verify reports whether the signature of m was produced by the owner of
// pubKeyHex. It does not check that pubKeyHex is the key pinned for the
// session; callers do that.
func Verify(m Message, pubKeyHex string) bool {
	pub, err := keys.ParsePublicKeyHex(pubKeyHex)
	if err != nil {
		return false
	}

	b, err := signingBytes(m)
	if err != nil {
		return false
	}

	return keys.Verify(pub, crypto.SHA256(b), m.GetHeader().Signature)
}

// Digest returns the hexadecimal SHA256 of the canonical encoding of m as sent,
// signature included. The next message in the chain embeds this value in
// HashPrevMessage.
func Digest(m Message) (string, error) {
	b, err := crypto.CanonicalJSON(m)
	if err != nil {
		return "", errors.Wrap(err, "encoding message")
	}
	return crypto.SHA256Hex(b), nil
}
