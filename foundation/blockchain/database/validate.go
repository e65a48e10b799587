package database

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Set of transaction validation failures.
var (
	ErrCoinbaseStandalone = errors.New("coinbase transaction is only valid inside a block")
	ErrUnknownInput       = errors.New("input references an unknown output")
	ErrSpent              = errors.New("input is already spent")
	ErrNotOwner           = errors.New("input is not owned by the sender")
	ErrInsufficientInputs = errors.New("inputs do not cover outputs")
	ErrAmountOverflow     = errors.New("amounts overflow")
	ErrBadSignature       = errors.New("signature does not verify")
	ErrConfirmed          = errors.New("transaction is already confirmed")
)

// Set of block validation failures.
var (
	ErrDuplicateBlock = errors.New("block is already known")
	ErrUnknownParent  = errors.New("parent block is unknown")
	ErrTimestamp      = errors.New("timestamp is outside the valid range")
	ErrDifficulty     = errors.New("hash does not meet the difficulty")
	ErrDuplicateTx    = errors.New("transaction is listed twice")
)

// =============================================================================

// CheckTransaction validates a non-coinbase transaction against the
// reference set. Every input must point at an output that exists in the set,
// belongs to the sender and isn't listed as an input by any transaction in
// the set. The inputs must cover the outputs and the signature must verify.
// A transaction found in the set under its own id doesn't count as spending
// its own inputs, so a transaction confirmed on one branch validates again
// on a sibling branch. Blocks can't repeat a transaction their own ancestors
// confirmed, ValidateBlock checks that separately.
func CheckTransaction(crypto signature.Provider, tx Tx, ref *TxSet) error {
	if tx.IsCoinbase() {
		return ErrCoinbaseStandalone
	}

	id := tx.Hash(crypto)
	sender := tx.SenderAddress(crypto)
	seen := make(map[Input]struct{}, len(tx.Inputs))

	var inSum uint64
	for _, in := range tx.Inputs {
		if _, dup := seen[in]; dup {
			return fmt.Errorf("%w: %s:%d listed twice", ErrSpent, in.TransactionID, in.OutputIndex)
		}
		seen[in] = struct{}{}

		refTx, exists := ref.Get(in.TransactionID)
		if !exists || in.OutputIndex < 0 || in.OutputIndex >= len(refTx.Outputs) {
			return fmt.Errorf("%w: %s:%d", ErrUnknownInput, in.TransactionID, in.OutputIndex)
		}

		if spender, spent := ref.SpentBy(in); spent && spender != id {
			return fmt.Errorf("%w: %s:%d by %s", ErrSpent, in.TransactionID, in.OutputIndex, spender)
		}

		out := refTx.Outputs[in.OutputIndex]
		if out.Recipient != sender {
			return fmt.Errorf("%w: %s:%d pays %s", ErrNotOwner, in.TransactionID, in.OutputIndex, out.Recipient)
		}

		var carry uint64
		if inSum, carry = bits.Add64(inSum, out.Amount, 0); carry != 0 {
			return ErrAmountOverflow
		}
	}

	var outSum uint64
	for _, out := range tx.Outputs {
		var carry uint64
		if outSum, carry = bits.Add64(outSum, out.Amount, 0); carry != 0 {
			return ErrAmountOverflow
		}
	}

	if inSum < outSum {
		return fmt.Errorf("%w: inputs %d, outputs %d", ErrInsufficientInputs, inSum, outSum)
	}

	if !tx.VerifySignature(crypto) {
		return ErrBadSignature
	}

	return nil
}

// =============================================================================

// ValidateTransaction reports whether the transaction is valid against the
// reference set. A nil reference set means the confirmed transactions.
func (db *Database) ValidateTransaction(tx Tx, ref *TxSet) bool {
	if ref == nil {
		ref = db.confirmed
	}

	if err := db.checkTransaction(tx, ref); err != nil {
		db.evHandler("database: ValidateTransaction: rejected: tx[%s]: %s", tx.Hash(db.crypto), err)
		return false
	}

	return true
}

// ValidateTransactions returns the transactions that are valid when checked
// in order against the confirmed transactions, each accepted transaction
// folded into the reference set before the next is checked.
func (db *Database) ValidateTransactions(trans []Tx) []Tx {
	ref := db.confirmed.Copy()

	valid := make([]Tx, 0, len(trans))
	for _, tx := range trans {
		if err := db.checkTransaction(tx, ref); err != nil {
			db.evHandler("database: ValidateTransactions: dropped: tx[%s]: %s", tx.Hash(db.crypto), err)
			continue
		}

		ref.Put(tx.Hash(db.crypto), tx)
		valid = append(valid, tx)
	}

	return valid
}

// ValidateBlock reports whether the block can be accepted at the specified
// difficulty.
func (db *Database) ValidateBlock(block Block, difficulty int) bool {
	if err := db.checkBlock(block, difficulty); err != nil {
		db.evHandler("database: ValidateBlock: rejected: blk[%s]: %s", block.Hash(db.crypto), err)
		return false
	}

	return true
}

func (db *Database) checkTransaction(tx Tx, ref *TxSet) error {
	if db.confirmed.Contains(tx.Hash(db.crypto)) {
		return ErrConfirmed
	}

	return CheckTransaction(db.crypto, tx, ref)
}

func (db *Database) checkBlock(block Block, difficulty int) error {
	hash := block.Hash(db.crypto)

	if _, exists := db.blocks[hash]; exists {
		return ErrDuplicateBlock
	}

	var parentTimeStamp uint64
	if block.PrevHash != GenesisParent {
		parent, exists := db.blocks[block.PrevHash]
		if !exists {
			return fmt.Errorf("%w: %s", ErrUnknownParent, block.PrevHash)
		}
		parentTimeStamp = parent.TimeStamp
	}

	now := uint64(time.Now().UnixMilli())
	if block.TimeStamp <= parentTimeStamp || block.TimeStamp > now {
		return fmt.Errorf("%w: got %d, parent %d, now %d", ErrTimestamp, block.TimeStamp, parentTimeStamp, now)
	}

	if !IsHashSolved(difficulty, hash) {
		return fmt.Errorf("%w: %d", ErrDifficulty, difficulty)
	}

	if err := db.checkAncestors(block); err != nil {
		return err
	}

	height := db.FindBlockHeight(block) + 1
	if err := CheckCoinbase(db.crypto, db.genesis.BaseReward, db.confirmed.Get, block, height); err != nil {
		return err
	}

	ref := db.confirmed.Copy()
	ids := make(map[string]struct{}, len(block.Trans))
	for _, tx := range block.Trans[1:] {
		id := tx.Hash(db.crypto)
		if _, dup := ids[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTx, id)
		}
		ids[id] = struct{}{}

		if err := CheckTransaction(db.crypto, tx, ref); err != nil {
			return fmt.Errorf("tx[%s]: %w", id, err)
		}
		ref.Put(id, tx)
	}

	return nil
}

// checkAncestors fails when a transaction in the block is already confirmed
// by a block on the chain the new block extends.
func (db *Database) checkAncestors(block Block) error {
	ids := make(map[string]struct{}, len(block.Trans))
	for _, tx := range block.Trans {
		if !tx.IsCoinbase() {
			ids[tx.Hash(db.crypto)] = struct{}{}
		}
	}

	if len(ids) == 0 {
		return nil
	}

	for prevHash := block.PrevHash; prevHash != GenesisParent; {
		ancestor, exists := db.blocks[prevHash]
		if !exists {
			break
		}

		for _, tx := range ancestor.Trans {
			if tx.IsCoinbase() {
				continue
			}

			id := tx.Hash(db.crypto)
			if _, exists := ids[id]; exists {
				return fmt.Errorf("%w: tx[%s] in blk[%s]", ErrConfirmed, id, prevHash)
			}
		}

		prevHash = ancestor.PrevHash
	}

	return nil
}
