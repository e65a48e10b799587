// Package mempool maintains the transactions waiting to be mined.
package mempool

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// Mempool represents a cache of transactions keyed by transaction id. The
// pool keeps the order transactions arrived in, so a transaction spending
// the output of another pooled transaction stays behind it.
type Mempool struct {
	crypto signature.Provider
	pool   *database.TxSet
	mu     sync.RWMutex
}

// New constructs a new empty mempool.
func New(crypto signature.Provider) *Mempool {
	return &Mempool{
		crypto: crypto,
		pool:   database.NewTxSet(),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pool.Len()
}

// Upsert adds a transaction to the mempool. Adding a transaction that is
// already in the pool changes nothing. It returns the size of the pool.
func (mp *Mempool) Upsert(tx database.Tx) int {
	id := tx.Hash(mp.crypto)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if !mp.pool.Contains(id) {
		mp.pool.Put(id, tx)
	}

	return mp.pool.Len()
}

// Contains reports whether the transaction is in the pool.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pool.Contains(id)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool.Delete(id)
}

// Copy returns the transactions in the order they were added.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.pool.Values()
}

// Drain returns the transactions in the order they were added and empties
// the pool.
func (mp *Mempool) Drain() []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	trans := mp.pool.Values()
	mp.pool = database.NewTxSet()

	return trans
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = database.NewTxSet()
}
