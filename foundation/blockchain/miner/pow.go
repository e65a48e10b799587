package miner

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// checkEvery is how many nonce attempts run between checks of the context
// and the time budget.
const checkEvery = 1 << 12

// work is an immutable snapshot of the candidate handed to the search.
type work struct {
	block      database.Block
	digest     string
	difficulty int
	revision   uint64
}

// Run performs proof of work on the candidate block until the context is
// cancelled. Each round searches for at most the mining budget so changes
// made through SetChainEnd are picked up without stopping the loop.
func (m *Miner) Run(ctx context.Context) {
	m.evHandler("miner: Run: MINING: G started")
	defer m.evHandler("miner: Run: MINING: G completed")

	for {
		if ctx.Err() != nil {
			return
		}

		w, ready := m.prepare()
		if !ready {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		nonce, solved := m.search(ctx, w)
		if !solved {
			continue
		}

		m.complete(w, nonce)
	}
}

// prepare refreshes the candidate and stamps it with the current time. It
// reports false when the parent was stamped in the current millisecond.
func (m *Miner) prepare() (work, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.refreshCandidate()

	now := uint64(time.Now().UnixMilli())
	if now <= m.prevTimeStamp {
		return work{}, false
	}

	block := m.candidate
	block.TimeStamp = now

	w := work{
		block:      block,
		digest:     database.TransDigest(m.crypto, block.Trans),
		difficulty: m.difficulty,
		revision:   m.revision,
	}

	return w, true
}

// search looks for a nonce that solves the block hash. It stops when the
// context is cancelled or the mining budget runs out.
func (m *Miner) search(ctx context.Context, w work) (uint64, bool) {

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found or time runs out.
	nonce := uint64(0)
	if nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64)); err == nil {
		nonce = nBig.Uint64()
	}

	deadline := time.Now().Add(m.genesis.MiningBudget())

	var attempts uint64
	for {
		attempts++
		if attempts%checkEvery == 0 {
			if ctx.Err() != nil {
				m.evHandler("miner: search: MINING: CANCELLED: attempts[%d]", attempts)
				return 0, false
			}

			if time.Now().After(deadline) {
				return 0, false
			}
		}

		hash := database.HashBlock(m.crypto, w.block.PrevHash, w.block.TimeStamp, nonce, w.digest)
		if database.IsHashSolved(w.difficulty, hash) {
			m.evHandler("miner: search: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", w.block.PrevHash, hash, attempts)
			return nonce, true
		}

		nonce++
	}
}

// complete hands the solved block over unless the candidate was moved to a
// different parent while the search ran.
func (m *Miner) complete(w work, nonce uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if w.revision != m.revision {
		m.evHandler("miner: complete: MINING: discarded: chain end changed during search")
		return
	}

	block := w.block
	block.Nonce = nonce

	m.advance(block)
	m.onBlockMined(block)
}
