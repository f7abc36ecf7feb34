// Package keys implements the public key cryptography used by gateways.
//
// Each gateway owns a secp256k1 key-pair. The private key signs every protocol
// message and every claim the gateway stores; the counterpart pins the public
// key when a session is created and refuses messages signed by any other key.
// Signatures are deterministic (RFC 6979) and travel as the hexadecimal
// concatenation of the 32-byte R and S values.
package keys
