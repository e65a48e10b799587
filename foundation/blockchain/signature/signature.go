// Package signature provides the hashing and signing primitives the
// blockchain consumes. The rest of the system only sees the Provider
// interface so the primitives can be swapped for tests.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// AddressVersion is the Base58Check version byte used for addresses.
const AddressVersion byte = 0x1e

// stampPrefix is mixed into every signed digest so signatures produced
// here can't be replayed as signatures over some other kind of message.
// Ethereum and Bitcoin do the same with their own prefix.
const stampPrefix = "\x19UTXO Signed Message:\n32"

// ErrInvalidSignature is returned when a signature string can't be decoded.
var ErrInvalidSignature = errors.New("invalid signature")

// =============================================================================

// Provider represents the set of cryptographic primitives required by the
// blockchain.
type Provider interface {
	Hash(data []byte) []byte
	ShortHash(data []byte) []byte
	Sign(msg []byte, privateKey *ecdsa.PrivateKey) (string, error)
	Verify(msg []byte, publicKey []byte, sig string) bool
	Base58CheckEncode(data []byte) string
}

// =============================================================================

// Secp256k1 implements the Provider interface with SHA-256 hashing,
// RIPEMD-160 short hashes, secp256k1 ECDSA signatures and Base58Check.
type Secp256k1 struct{}

// New constructs the default provider.
func New() Secp256k1 {
	return Secp256k1{}
}

// Hash returns the SHA-256 digest of the data.
func (Secp256k1) Hash(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// ShortHash returns the RIPEMD-160 digest of the data.
func (Secp256k1) ShortHash(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// Sign uses the specified private key to sign the message. The signature
// is returned hex encoded in the [R|S|V] format.
func (Secp256k1) Sign(msg []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", errors.New("private key is required")
	}

	sig, err := crypto.Sign(stamp(msg), privateKey)
	if err != nil {
		return "", err
	}

	return hexutil.Encode(sig), nil
}

// Verify checks the signature was produced over the message by the private
// key that matches the public key.
func (Secp256k1) Verify(msg []byte, publicKey []byte, sig string) bool {
	sigBytes, err := hexutil.Decode(sig)
	if err != nil || len(sigBytes) != crypto.SignatureLength {
		return false
	}

	// Only uncompressed keys are accepted.
	if _, err := crypto.UnmarshalPubkey(publicKey); err != nil {
		return false
	}

	return crypto.VerifySignature(publicKey, stamp(msg), sigBytes[:crypto.RecoveryIDOffset])
}

// Base58CheckEncode encodes the data with the address version byte and a
// four byte checksum.
func (Secp256k1) Base58CheckEncode(data []byte) string {
	return base58.CheckEncode(data, AddressVersion)
}

// =============================================================================

// PublicKeyBytes returns the uncompressed encoding of the public key.
func PublicKeyBytes(pk *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(pk)
}

// ToHex encodes a digest for use as an identifier.
func ToHex(digest []byte) string {
	return hexutil.Encode(digest)
}

// stamp returns a 32 byte hash of the message with the stamp embedded.
func stamp(msg []byte) []byte {
	return crypto.Keccak256([]byte(stampPrefix), crypto.Keccak256(msg))
}
