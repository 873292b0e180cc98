package node

import (
	"github.com/ghost-coin/ghost-core-sub001/crypto"
)

// LoadBlindProvider returns the secp256k1 commitment backend over the
// standard SHA3 provider.
func LoadBlindProvider() (*crypto.Secp256k1Blind, error) {
	return crypto.NewSecp256k1Blind(crypto.DevStdCryptoProvider{})
}
