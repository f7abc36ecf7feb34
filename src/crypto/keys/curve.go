package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

//Order of the secp256k1 group. It is used to validate raw private keys.
var secp256k1N = btcec.S256().N

//scalarLen is the byte length of private keys and signature components.
var scalarLen = (btcec.S256().BitSize + 7) / 8

//Curve returns an elliptic.Curve. We use btcsuite's golang implementation of
//secp256k1.
func Curve() elliptic.Curve {
	return btcec.S256() //secp256k1
}

func validScalar(d *big.Int) bool {
	return d.Sign() > 0 && d.Cmp(secp256k1N) < 0
}
