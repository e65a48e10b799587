package database

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Input references an output of a previous transaction being spent.
type Input struct {
	TransactionID string `json:"transaction_id"`
	OutputIndex   int    `json:"output_index"`
}

// Output assigns an amount to a single recipient.
type Output struct {
	Amount    uint64  `json:"amount"`
	Recipient Address `json:"recipient"`
}

// =============================================================================

// Tx is the transactional information between two parties. A transaction
// without a sender public key is a coinbase transaction.
type Tx struct {
	SenderPublicKey hexutil.Bytes `json:"sender_public_key,omitempty"`
	Inputs          []Input       `json:"inputs"`
	Outputs         []Output      `json:"outputs"`
	SenderSignature string        `json:"sender_signature,omitempty"`
}

// NewTx constructs a new unsigned transaction.
func NewTx(senderPublicKey []byte, inputs []Input, outputs []Output) Tx {
	tx := Tx{
		SenderPublicKey: bytes.Clone(senderPublicKey),
		Inputs:          append([]Input{}, inputs...),
		Outputs:         append([]Output{}, outputs...),
	}

	return tx
}

// NewCoinbaseTx constructs the reward transaction for a block.
func NewCoinbaseTx(amount uint64, recipient Address) Tx {
	return Tx{
		Inputs:  []Input{},
		Outputs: []Output{{Amount: amount, Recipient: recipient}},
	}
}

// IsCoinbase reports whether this is a reward transaction.
func (tx Tx) IsCoinbase() bool {
	return len(tx.SenderPublicKey) == 0
}

// Hash returns the transaction id. The id covers the sender, inputs and
// outputs but not the signature, so it is fixed once the transaction is built.
func (tx Tx) Hash(crypto signature.Provider) string {
	return signature.ToHex(crypto.Hash(tx.canonical()))
}

// Sign uses the specified private key to sign the transaction id. The
// returned transaction carries the signature.
func (tx Tx) Sign(crypto signature.Provider, privateKey *ecdsa.PrivateKey) (Tx, error) {
	if tx.IsCoinbase() {
		return Tx{}, errors.New("coinbase transactions are not signed")
	}

	sig, err := crypto.Sign([]byte(tx.Hash(crypto)), privateKey)
	if err != nil {
		return Tx{}, err
	}

	tx.SenderSignature = sig

	return tx, nil
}

// VerifySignature checks the signature over the transaction id was made
// with the sender's key.
func (tx Tx) VerifySignature(crypto signature.Provider) bool {
	if tx.IsCoinbase() || tx.SenderSignature == "" {
		return false
	}

	return crypto.Verify([]byte(tx.Hash(crypto)), tx.SenderPublicKey, tx.SenderSignature)
}

// SenderAddress returns the address derived from the sender public key.
func (tx Tx) SenderAddress(crypto signature.Provider) Address {
	if tx.IsCoinbase() {
		return ""
	}

	return ToAddress(crypto, tx.SenderPublicKey)
}

// PaysTo reports whether any output is assigned to the address.
func (tx Tx) PaysTo(address Address) bool {
	for _, out := range tx.Outputs {
		if out.Recipient == address {
			return true
		}
	}

	return false
}

// AmountTo returns the sum of the outputs assigned to the address.
func (tx Tx) AmountTo(address Address) uint64 {
	var amount uint64
	for _, out := range tx.Outputs {
		if out.Recipient == address {
			amount += out.Amount
		}
	}

	return amount
}

// OutputSum returns the sum of all the outputs.
func (tx Tx) OutputSum() uint64 {
	var sum uint64
	for _, out := range tx.Outputs {
		sum += out.Amount
	}

	return sum
}

// canonical produces the serialization the id is computed over. Nil and
// empty lists serialize the same so an id survives a trip over the wire.
func (tx Tx) canonical() []byte {
	var sender string
	if !tx.IsCoinbase() {
		sender = hexutil.Encode(tx.SenderPublicKey)
	}

	inputs := tx.Inputs
	if inputs == nil {
		inputs = []Input{}
	}

	outputs := tx.Outputs
	if outputs == nil {
		outputs = []Output{}
	}

	v := struct {
		Sender  string   `json:"sender"`
		Inputs  []Input  `json:"inputs"`
		Outputs []Output `json:"outputs"`
	}{
		Sender:  sender,
		Inputs:  inputs,
		Outputs: outputs,
	}

	// A struct of strings and integers can't fail to marshal.
	data, _ := json.Marshal(v)

	return data
}
