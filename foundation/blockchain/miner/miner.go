// Package miner owns the block being mined. It assembles the candidate block
// from the pending transactions, runs the proof of work search and reports
// every block it solves.
//
// The miner shares the node's chain lock. Every exported method other than
// Run expects the caller to hold that lock, and the OnBlockMined callback is
// invoked with the lock held. Run takes the lock only to read or replace the
// candidate, the nonce search itself runs without it.
package miner

import (
	"errors"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of mining.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a miner.
type Config struct {
	Crypto      signature.Provider
	Genesis     genesis.Genesis
	Beneficiary database.Address
	Lock        sync.Locker

	// Lookup resolves confirmed transactions when fees are computed.
	Lookup database.TxLookup

	// Filter, when set, drops the transactions that are no longer valid
	// against the chain before they are placed in the candidate.
	Filter func(trans []database.Tx) []database.Tx

	// OnBlockMined receives every solved block.
	OnBlockMined func(block database.Block)

	EvHandler EventHandler
}

// Miner manages the candidate block and the mempool feeding it.
type Miner struct {
	crypto       signature.Provider
	genesis      genesis.Genesis
	beneficiary  database.Address
	lock         sync.Locker
	lookup       database.TxLookup
	filter       func(trans []database.Tx) []database.Tx
	onBlockMined func(block database.Block)
	evHandler    EventHandler

	mempool *mempool.Mempool

	prevHash      string
	prevTimeStamp uint64
	minedHeight   int
	difficulty    int

	trans     []database.Tx
	transIDs  map[string]struct{}
	candidate database.Block
	dirty     bool
	revision  uint64
}

// New constructs a miner that extends the genesis parent until told
// otherwise through SetChainEnd.
func New(cfg Config) (*Miner, error) {
	if cfg.Crypto == nil {
		return nil, errors.New("crypto provider is required")
	}

	if cfg.Lock == nil {
		return nil, errors.New("lock is required")
	}

	if !cfg.Beneficiary.IsAddress() {
		return nil, errors.New("beneficiary is not a valid address")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	lookup := cfg.Lookup
	if lookup == nil {
		lookup = func(string) (database.Tx, bool) { return database.Tx{}, false }
	}

	onBlockMined := cfg.OnBlockMined
	if onBlockMined == nil {
		onBlockMined = func(database.Block) {}
	}

	m := Miner{
		crypto:       cfg.Crypto,
		genesis:      cfg.Genesis,
		beneficiary:  cfg.Beneficiary,
		lock:         cfg.Lock,
		lookup:       lookup,
		filter:       cfg.Filter,
		onBlockMined: onBlockMined,
		evHandler:    ev,
		mempool:      mempool.New(cfg.Crypto),
		prevHash:     database.GenesisParent,
		minedHeight:  1,
		difficulty:   cfg.Genesis.Difficulty,
		transIDs:     make(map[string]struct{}),
		dirty:        true,
	}

	return &m, nil
}

// =============================================================================

// IncludeTransaction queues the transaction for the next candidate. A
// transaction already pending is ignored.
func (m *Miner) IncludeTransaction(tx database.Tx) {
	id := tx.Hash(m.crypto)
	if _, exists := m.transIDs[id]; exists {
		return
	}

	n := m.mempool.Upsert(tx)
	m.evHandler("miner: IncludeTransaction: tx[%s]: mempool[%d]", id, n)
}

// IncludeTransactions queues the transactions in order.
func (m *Miner) IncludeTransactions(trans []database.Tx) {
	for _, tx := range trans {
		m.IncludeTransaction(tx)
	}
}

// SetChainEnd moves the candidate on top of the specified block, which sits
// at the specified height. The candidate's transactions are replaced by the
// leftovers and the mempool is kept. A search in flight for the previous
// parent is discarded when it completes.
func (m *Miner) SetChainEnd(block database.Block, height int, leftovers []database.Tx) {
	m.prevHash = block.Hash(m.crypto)
	m.prevTimeStamp = block.TimeStamp
	m.minedHeight = height + 1

	m.setTrans(leftovers)
	m.dirty = true
	m.revision++

	m.evHandler("miner: SetChainEnd: prevBlk[%s]: height[%d]: leftovers[%d]", m.prevHash, m.minedHeight, len(leftovers))
}

// Transactions returns every transaction not yet mined, the candidate's
// first and then the mempool's.
func (m *Miner) Transactions() []database.Tx {
	trans := append([]database.Tx{}, m.trans...)
	return append(trans, m.mempool.Copy()...)
}

// CandidateTransactions returns the non-coinbase transactions of the
// candidate.
func (m *Miner) CandidateTransactions() []database.Tx {
	return append([]database.Tx{}, m.trans...)
}

// CandidatePrevHash returns the hash the candidate block extends.
func (m *Miner) CandidatePrevHash() string {
	return m.prevHash
}

// MinedHeight returns the height the candidate will occupy once mined.
func (m *Miner) MinedHeight() int {
	return m.minedHeight
}

// MempoolCount returns the number of queued transactions that are not
// part of the candidate yet.
func (m *Miner) MempoolCount() int {
	return m.mempool.Count()
}

// SetDifficulty sets the difficulty the next search must meet.
func (m *Miner) SetDifficulty(difficulty int) {
	if difficulty != m.difficulty {
		m.evHandler("miner: SetDifficulty: difficulty[%d] -> [%d]", m.difficulty, difficulty)
	}

	m.difficulty = difficulty
}

// Difficulty returns the difficulty the search must meet.
func (m *Miner) Difficulty() int {
	return m.difficulty
}

// ValidateCoinbaseTransaction reports whether the block's coinbase is valid
// for a block at the specified height.
func (m *Miner) ValidateCoinbaseTransaction(block database.Block, height int) bool {
	if err := database.CheckCoinbase(m.crypto, m.genesis.BaseReward, m.lookup, block, height); err != nil {
		m.evHandler("miner: ValidateCoinbaseTransaction: blk[%s]: %s", block.Hash(m.crypto), err)
		return false
	}

	return true
}

// =============================================================================

// refreshCandidate rebuilds the candidate when its transaction set changed.
// The candidate's transactions come first, followed by the drained mempool.
// The coinbase pays the reward for the height plus the fees of the set.
func (m *Miner) refreshCandidate() {
	if !m.dirty && m.mempool.Count() == 0 {
		return
	}

	trans := append([]database.Tx{}, m.trans...)
	for _, tx := range m.mempool.Drain() {
		if _, exists := m.transIDs[tx.Hash(m.crypto)]; !exists {
			trans = append(trans, tx)
		}
	}

	if m.filter != nil {
		trans = m.filter(trans)
	}
	m.setTrans(trans)

	fees := database.Fees(m.crypto, m.lookup, m.trans)
	reward := database.BlockReward(m.genesis.BaseReward, m.minedHeight)
	coinbase := database.NewCoinbaseTx(reward+fees, m.beneficiary)

	m.candidate = database.NewBlock(m.prevHash, append([]database.Tx{coinbase}, m.trans...))
	m.dirty = false

	m.evHandler("miner: refreshCandidate: prevBlk[%s]: height[%d]: trans[%d]: reward[%d]: fees[%d]", m.prevHash, m.minedHeight, len(m.trans), reward, fees)
}

// advance chains a fresh candidate on top of the block just mined.
func (m *Miner) advance(block database.Block) {
	m.prevHash = block.Hash(m.crypto)
	m.prevTimeStamp = block.TimeStamp
	m.minedHeight++

	m.setTrans(nil)
	m.dirty = true
	m.revision++
}

func (m *Miner) setTrans(trans []database.Tx) {
	m.trans = append([]database.Tx{}, trans...)
	m.transIDs = make(map[string]struct{}, len(trans))
	for _, tx := range m.trans {
		m.transIDs[tx.Hash(m.crypto)] = struct{}{}
	}
}
