package claims

import (
	"fmt"

	"github.com/mosaicnetworks/satp/src/crypto"
	"github.com/mosaicnetworks/satp/src/crypto/keys"
)

// Proof names used by the gateways.
const (
	ProofLock           = "lock"
	ProofDelete         = "delete"
	ProofCreate         = "create"
	ProofRollbackUnlock = "rollback-unlock"
	ProofRollbackCreate = "rollback-create"
	ProofRollbackDelete = "rollback-delete"
)

// Proof is a signed ledger claim.
type Proof struct {
	Key       string `json:"key"`
	Bytes     []byte `json:"bytes"`
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

// ProofKey returns the key of the proof called name in a session.
func ProofKey(sessionID, name string) string {
	return fmt.Sprintf("%s/proof/%s", sessionID, name)
}

// Signer is the signing capability used to endorse proofs.
type Signer interface {
	PublicKeyHex() string
	Sign(digest []byte) (string, error)
}

// NewProof hashes claim and signs the hash with s.
func NewProof(key string, claim []byte, s Signer) (*Proof, error) {
	digest := crypto.SHA256(claim)

	sig, err := s.Sign(digest)
	if err != nil {
		return nil, err
	}

	return &Proof{
		Key:       key,
		Bytes:     claim,
		Hash:      crypto.SHA256Hex(claim),
		Signature: sig,
		Signer:    s.PublicKeyHex(),
	}, nil
}

// CheckHash reports whether Hash is the digest of Bytes.
func (p *Proof) CheckHash() bool {
	return crypto.SHA256Hex(p.Bytes) == p.Hash
}

// Verify checks the digest and the signature of the proof.
func (p *Proof) Verify() bool {
	if !p.CheckHash() {
		return false
	}

	pub, err := keys.ParsePublicKeyHex(p.Signer)
	if err != nil {
		return false
	}

	return keys.Verify(pub, crypto.SHA256(p.Bytes), p.Signature)
}

// Marshal ...
func (p *Proof) Marshal() ([]byte, error) {
	return crypto.CanonicalJSON(p)
}

// Unmarshal ...
func (p *Proof) Unmarshal(data []byte) error {
	return crypto.DecodeJSON(data, p)
}
