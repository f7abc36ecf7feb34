package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

//GenerateECDSAKey creates a new ecdsa.PrivateKey on the secp256k1 curve.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

//DumpPrivateKey exports a private key into a fixed-length big-endian dump of
//its D value.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return paddedBytes(priv.D, scalarLen)
}

//ParsePrivateKey creates a private key with the given D value.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != scalarLen {
		return nil, fmt.Errorf("invalid length, need %d bytes, got %d", scalarLen, len(d))
	}

	if !validScalar(new(big.Int).SetBytes(d)) {
		return nil, fmt.Errorf("invalid private key, out of range")
	}

	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)

	return priv.ToECDSA(), nil
}

//ParsePrivateKeyHex parses the output of PrivateKeyHex.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	d, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(d)
}

//PrivateKeyHex returns the hexadecimal representation of a raw private key as
//returned by DumpPrivateKey
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}

//paddedBytes encodes a big integer as a big-endian byte slice of exactly n
//bytes, left-padded with zeros.
func paddedBytes(i *big.Int, n int) []byte {
	b := i.Bytes()
	if len(b) >= n {
		return b
	}
	ret := make([]byte, n)
	copy(ret[n-len(b):], b)
	return ret
}
