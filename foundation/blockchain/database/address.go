package database

import (
	"crypto/ecdsa"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/btcsuite/btcutil/base58"
)

// Address represents the identity that owns transaction outputs. It is
// derived one way from a public key and never stores the key itself.
type Address string

// ToAddress derives the address for the specified public key bytes.
func ToAddress(crypto signature.Provider, publicKey []byte) Address {
	return Address(crypto.Base58CheckEncode(crypto.ShortHash(crypto.Hash(publicKey))))
}

// PublicKeyToAddress derives the address for the public key.
func PublicKeyToAddress(crypto signature.Provider, pk *ecdsa.PublicKey) Address {
	return ToAddress(crypto, signature.PublicKeyBytes(pk))
}

// IsAddress verifies the address is a properly formatted Base58Check value
// carrying the address version.
func (a Address) IsAddress() bool {
	_, version, err := base58.CheckDecode(string(a))
	if err != nil {
		return false
	}

	return version == signature.AddressVersion
}

// String implements the fmt.Stringer interface.
func (a Address) String() string {
	return string(a)
}
