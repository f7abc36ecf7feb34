package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// Sign signs a digest with the private key. The nonce is derived from the key
// and the digest (RFC 6979), so signing the same digest twice yields the same
// signature.
func Sign(priv *ecdsa.PrivateKey, digest []byte) (string, error) {
	sig, err := (*btcec.PrivateKey)(priv).Sign(digest)
	if err != nil {
		return "", err
	}
	return EncodeSignature(sig.R, sig.S), nil
}

// Verify reports whether sig is a valid signature of digest by the owner of
// pub. Malformed signatures are reported as invalid.
func Verify(pub *ecdsa.PublicKey, digest []byte, sig string) bool {
	if pub == nil {
		return false
	}

	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false
	}

	return ecdsa.Verify(pub, digest, r, s)
}

// EncodeSignature returns the hexadecimal concatenation of r and s, each
// left-padded to 32 bytes.
func EncodeSignature(r, s *big.Int) string {
	buf := make([]byte, 0, 2*scalarLen)
	buf = append(buf, paddedBytes(r, scalarLen)...)
	buf = append(buf, paddedBytes(s, scalarLen)...)
	return hex.EncodeToString(buf)
}

// DecodeSignature parses a string representation of a signature as produced by
// EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) != 2*scalarLen {
		return nil, nil, fmt.Errorf("wrong signature length: got %d bytes, want %d", len(raw), 2*scalarLen)
	}
	r = new(big.Int).SetBytes(raw[:scalarLen])
	s = new(big.Int).SetBytes(raw[scalarLen:])
	return r, s, nil
}
