// Package database maintains the local view of the blockchain: every
// accepted block, every confirmed transaction and the unspent outputs owned
// by the local address. The database does not lock. The node owning it
// serializes access with the same lock that guards the miner.
package database

import (
	"errors"

	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of the database.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a database.
type Config struct {
	Owner     Address
	Crypto    signature.Provider
	Genesis   genesis.Genesis
	EvHandler EventHandler
}

// Database manages the blocks and transactions known to the node. It has no
// lock of its own. Reads memoize heights and difficulties, so every call,
// read or write, must happen under one lock held by the caller.
type Database struct {
	owner     Address
	crypto    signature.Provider
	genesis   genesis.Genesis
	evHandler EventHandler

	blocks       map[string]Block
	heights      map[string]int
	difficulties map[string]int
	confirmed    *TxSet
	relevant     *TxSet

	endHash   string
	endHeight int
}

// New constructs an empty database for the owner.
func New(cfg Config) (*Database, error) {
	if cfg.Crypto == nil {
		return nil, errors.New("crypto provider is required")
	}

	if !cfg.Owner.IsAddress() {
		return nil, errors.New("owner is not a valid address")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db := Database{
		owner:        cfg.Owner,
		crypto:       cfg.Crypto,
		genesis:      cfg.Genesis,
		evHandler:    ev,
		blocks:       make(map[string]Block),
		heights:      make(map[string]int),
		difficulties: make(map[string]int),
		confirmed:    NewTxSet(),
		relevant:     NewTxSet(),
	}

	return &db, nil
}

// Owner returns the address the database tracks unspent outputs for.
func (db *Database) Owner() Address {
	return db.owner
}

// =============================================================================

// AddBlock records an accepted block. The block's transactions become
// confirmed and the owner's unspent outputs are updated. The caller is
// expected to have validated the block and must hold the lock that
// serializes access to the database.
func (db *Database) AddBlock(block Block) {
	hash := block.Hash(db.crypto)
	if _, exists := db.blocks[hash]; exists {
		return
	}

	db.blocks[hash] = block

	for _, tx := range block.Trans {
		id := tx.Hash(db.crypto)
		known := db.confirmed.Contains(id)

		// Drop the owner's transactions whose outputs this one spends.
		for _, in := range tx.Inputs {
			spent, exists := db.relevant.Get(in.TransactionID)
			if !exists || in.OutputIndex < 0 || in.OutputIndex >= len(spent.Outputs) {
				continue
			}

			if spent.Outputs[in.OutputIndex].Recipient == db.owner {
				db.relevant.Delete(in.TransactionID)
			}
		}

		db.confirmed.Put(id, tx)

		if !known && tx.PaysTo(db.owner) && !db.ownedOutputSpent(id, tx) {
			db.relevant.Put(id, tx)
		}
	}

	height := db.chainHeight(hash)
	if height > db.endHeight || (height == db.endHeight && hash < db.endHash) {
		db.endHash = hash
		db.endHeight = height
	}

	db.evHandler("database: AddBlock: blk[%s]: height[%d] trans[%d]", hash, height, len(block.Trans))
}

// ownedOutputSpent reports whether a confirmed transaction already spends
// one of the owner's outputs of the transaction.
func (db *Database) ownedOutputSpent(id string, tx Tx) bool {
	for i, out := range tx.Outputs {
		if out.Recipient != db.owner {
			continue
		}

		if _, spent := db.confirmed.SpentBy(Input{TransactionID: id, OutputIndex: i}); spent {
			return true
		}
	}

	return false
}

// =============================================================================

// FindLongestChainEnd returns the block ending the longest known chain and
// its height. The first block of a chain has height 1. Between chains of
// equal height the one whose end has the lexicographically smallest hash
// wins. The boolean is false when no block is known.
func (db *Database) FindLongestChainEnd() (Block, int, bool) {
	if db.endHash == "" {
		return Block{}, 0, false
	}

	return db.blocks[db.endHash], db.endHeight, true
}

// FindBlockHeight counts the known ancestors of the block by walking its
// previous hash links. It returns 0 when the parent is not known.
func (db *Database) FindBlockHeight(block Block) int {
	if _, exists := db.blocks[block.PrevHash]; !exists {
		return 0
	}

	return db.chainHeight(block.PrevHash)
}

// Height returns the height of the known block with the specified hash.
func (db *Database) Height(hash string) (int, bool) {
	if _, exists := db.blocks[hash]; !exists {
		return 0, false
	}

	return db.chainHeight(hash), true
}

// chainHeight returns the height of a known block. Heights are memoized and
// computed by iterating towards the root so long chains can't exhaust the
// stack.
func (db *Database) chainHeight(hash string) int {
	if h, exists := db.heights[hash]; exists {
		return h
	}

	var path []string
	base := 0
	for cur := hash; ; {
		if h, exists := db.heights[cur]; exists {
			base = h
			break
		}

		block, exists := db.blocks[cur]
		if !exists {
			break
		}

		path = append(path, cur)
		cur = block.PrevHash
	}

	for i := len(path) - 1; i >= 0; i-- {
		base++
		db.heights[path[i]] = base
	}

	return db.heights[hash]
}

// =============================================================================

// Block returns the block with the specified hash.
func (db *Database) Block(hash string) (Block, bool) {
	block, exists := db.blocks[hash]
	return block, exists
}

// Blocks returns a copy of every known block keyed by hash.
func (db *Database) Blocks() map[string]Block {
	blocks := make(map[string]Block, len(db.blocks))
	for hash, block := range db.blocks {
		blocks[hash] = block
	}

	return blocks
}

// BlockCount returns the number of known blocks.
func (db *Database) BlockCount() int {
	return len(db.blocks)
}

// Transaction returns the confirmed transaction with the specified id.
func (db *Database) Transaction(id string) (Tx, bool) {
	return db.confirmed.Get(id)
}

// IsConfirmed reports whether the transaction is part of an accepted block.
func (db *Database) IsConfirmed(id string) bool {
	return db.confirmed.Contains(id)
}

// Confirmed returns a copy of the confirmed transactions.
func (db *Database) Confirmed() *TxSet {
	return db.confirmed.Copy()
}

// =============================================================================

// Relevant returns the owner's unspent transactions in the order they were
// confirmed.
func (db *Database) Relevant() []Tx {
	return db.relevant.Values()
}

// RelevantIDs returns the ids of the owner's unspent transactions in the
// order they were confirmed.
func (db *Database) RelevantIDs() []string {
	return db.relevant.IDs()
}

// RemoveRelevant forgets the owner's transactions with the specified ids,
// used once their outputs are committed to a new transaction. The caller
// must hold the lock that serializes access to the database.
func (db *Database) RemoveRelevant(ids ...string) {
	for _, id := range ids {
		db.relevant.Delete(id)
	}
}

// Balance returns the sum of the owner's unspent outputs.
func (db *Database) Balance() uint64 {
	var balance uint64
	for _, tx := range db.relevant.Values() {
		balance = saturatingAdd(balance, tx.AmountTo(db.owner))
	}

	return balance
}

// UserTransactions returns every confirmed transaction the owner sent or
// received, in the order they were confirmed.
func (db *Database) UserTransactions() []Tx {
	var trans []Tx
	for _, tx := range db.confirmed.Values() {
		if tx.PaysTo(db.owner) || tx.SenderAddress(db.crypto) == db.owner {
			trans = append(trans, tx)
		}
	}

	return trans
}
