package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hexadecimal SHA256 hash of the data. This is
// the form in which message digests and claim hashes travel in protocol
// messages.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}

// HashObject returns the hexadecimal SHA256 hash of the canonical encoding of
// v.
func HashObject(v interface{}) (string, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}
