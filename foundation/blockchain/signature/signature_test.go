package signature_test

import (
	"encoding/hex"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	prv := signature.New()

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}
	pub := signature.PublicKeyBytes(&pk.PublicKey)

	msg := []byte("0x7b2273656e646572223a6e756c6c7d")

	sig, err := prv.Sign(msg, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if !prv.Verify(msg, pub, sig) {
		t.Fatalf("Should be able to verify the signature.")
	}

	if prv.Verify([]byte("0x7b2273656e646572223a6e756c6c7e"), pub, sig) {
		t.Fatalf("Should not verify a signature over different data.")
	}

	other, err := crypto.HexToECDSA(otherHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	if prv.Verify(msg, signature.PublicKeyBytes(&other.PublicKey), sig) {
		t.Fatalf("Should not verify a signature with a different public key.")
	}

	if prv.Verify(msg, pub, "0x1234") {
		t.Fatalf("Should not verify a malformed signature.")
	}

	if prv.Verify(msg, []byte{1, 2, 3}, sig) {
		t.Fatalf("Should not verify with a malformed public key.")
	}
}

func Test_Hash(t *testing.T) {
	prv := signature.New()

	const sha = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	const ripemd = "9c1185a5c5e9fc54612808977ee8f548b2258d31"

	h := hex.EncodeToString(prv.Hash(nil))
	if h != sha {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", sha)
		t.Fatalf("Should get back the right hash.")
	}

	h = hex.EncodeToString(prv.ShortHash(nil))
	if h != ripemd {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", ripemd)
		t.Fatalf("Should get back the right short hash.")
	}

	if signature.ToHex(prv.Hash(nil)) != "0x"+sha {
		t.Fatalf("Should get back a 0x prefixed hex string.")
	}
}

func Test_Base58Check(t *testing.T) {
	prv := signature.New()

	data := []byte{0xde, 0xad, 0xbe, 0xef}
	s := prv.Base58CheckEncode(data)

	got, version, err := base58.CheckDecode(s)
	if err != nil {
		t.Fatalf("Should be able to decode the string: %s", err)
	}

	if version != signature.AddressVersion {
		t.Logf("got: %d", version)
		t.Logf("exp: %d", signature.AddressVersion)
		t.Fatalf("Should get back the address version.")
	}

	if hex.EncodeToString(got) != "deadbeef" {
		t.Logf("got: %x", got)
		t.Fatalf("Should get back the original bytes.")
	}
}
