package database

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Set of coinbase validation failures.
var (
	ErrNoCoinbase        = errors.New("block has no coinbase transaction")
	ErrCoinbaseShape     = errors.New("coinbase must have no sender, no inputs and one output")
	ErrCoinbaseAmount    = errors.New("coinbase amount exceeds reward plus fees")
	ErrCoinbaseRecipient = errors.New("coinbase recipient is not a valid address")
)

// TxLookup resolves a transaction by id.
type TxLookup func(id string) (Tx, bool)

// =============================================================================

// BlockReward returns the reward granted for mining the block at the
// specified height. It decays by one for every block until it reaches zero.
func BlockReward(baseReward uint64, height int) uint64 {
	if height <= 0 {
		return baseReward
	}

	if uint64(height) >= baseReward {
		return 0
	}

	return baseReward - uint64(height)
}

// Fees returns what the transactions leave unassigned, the sum of their
// input amounts minus the sum of their output amounts. Inputs are resolved
// through the lookup first and then against the earlier transactions in the
// list. A transaction whose inputs can't be resolved contributes nothing.
func Fees(crypto signature.Provider, lookup TxLookup, trans []Tx) uint64 {
	earlier := make(map[string]Tx, len(trans))

	var fees uint64
	for _, tx := range trans {
		var in uint64
		for _, input := range tx.Inputs {
			ref, exists := lookup(input.TransactionID)
			if !exists {
				ref, exists = earlier[input.TransactionID]
			}
			if !exists || input.OutputIndex < 0 || input.OutputIndex >= len(ref.Outputs) {
				continue
			}
			in = saturatingAdd(in, ref.Outputs[input.OutputIndex].Amount)
		}

		if out := tx.OutputSum(); in > out {
			fees = saturatingAdd(fees, in-out)
		}

		earlier[tx.Hash(crypto)] = tx
	}

	return fees
}

// CheckCoinbase validates the coinbase transaction of the block for the
// height the block occupies.
func CheckCoinbase(crypto signature.Provider, baseReward uint64, lookup TxLookup, block Block, height int) error {
	coinbase, exists := block.Coinbase()
	if !exists {
		return ErrNoCoinbase
	}

	if !coinbase.IsCoinbase() || len(coinbase.Inputs) != 0 || len(coinbase.Outputs) != 1 || coinbase.SenderSignature != "" {
		return ErrCoinbaseShape
	}

	if !coinbase.Outputs[0].Recipient.IsAddress() {
		return ErrCoinbaseRecipient
	}

	allowed := saturatingAdd(BlockReward(baseReward, height), Fees(crypto, lookup, block.Trans[1:]))
	if coinbase.Outputs[0].Amount > allowed {
		return fmt.Errorf("%w: got %d, allowed %d", ErrCoinbaseAmount, coinbase.Outputs[0].Amount, allowed)
	}

	return nil
}

// =============================================================================

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}

	return sum
}
