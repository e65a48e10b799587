package state

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// processBlock validates a block received from a peer and, when it is
// valid, records it and follows the longest chain. A block whose parent is
// unknown means the node missed part of the chain, so a download from the
// peers is scheduled.
func (s *State) processBlock(block database.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Hash(s.crypto)
	if _, exists := s.db.Block(hash); exists {
		return
	}

	if block.PrevHash != database.GenesisParent {
		if _, exists := s.db.Block(block.PrevHash); !exists {
			s.metrics.blocks.WithLabelValues("orphaned").Inc()
			s.evHandler("state: processBlock: orphaned: blk[%s]: prevBlk[%s]", hash, block.PrevHash)
			s.signalResync()
			return
		}
	}

	if !s.db.ValidateBlock(block, s.db.NextDifficulty(block.PrevHash)) {
		s.metrics.blocks.WithLabelValues("rejected").Inc()
		return
	}

	s.db.AddBlock(block)
	s.metrics.blocks.WithLabelValues("accepted").Inc()

	s.evHandler("state: processBlock: accepted: blk[%s]: prevBlk[%s]", hash, block.PrevHash)

	s.followLongestChain()
	s.updateBalance()
}

// onBlockMined records a block solved by the local miner and queues it for
// broadcast. The miner calls it with the chain lock held.
func (s *State) onBlockMined(block database.Block) {
	s.db.AddBlock(block)
	s.metrics.blocks.WithLabelValues("mined").Inc()

	s.evHandler("state: onBlockMined: blk[%s]: trans[%d]", block.Hash(s.crypto), len(block.Trans))

	s.followLongestChain()
	s.updateBalance()

	s.signalShare(BlockMessage{Block: block})
}

// followLongestChain moves the miner onto the end of the longest chain
// when it is not already mining on it. The candidate's transactions that
// are not confirmed yet carry over to the new candidate. The chain lock
// must be held.
func (s *State) followLongestChain() {
	end, height, exists := s.db.FindLongestChainEnd()
	if !exists {
		return
	}

	if end.Hash(s.crypto) != s.miner.CandidatePrevHash() {
		var leftovers []database.Tx
		for _, tx := range s.miner.CandidateTransactions() {
			if !s.db.IsConfirmed(tx.Hash(s.crypto)) {
				leftovers = append(leftovers, tx)
			}
		}

		s.miner.SetChainEnd(end, height, leftovers)
	}

	difficulty := s.db.NextDifficulty(s.miner.CandidatePrevHash())
	s.miner.SetDifficulty(difficulty)

	s.metrics.height.Set(float64(height))
	s.metrics.difficulty.Set(float64(difficulty))
}
