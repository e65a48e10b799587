package state

import (
	"context"
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
)

// bootstrap asks the peers for their chain and their unconfirmed
// transactions and moves the miner onto the end of the longest chain.
// Peers that don't answer in time are ignored.
func (w *worker) bootstrap(ctx context.Context) {
	w.evHandler("worker: bootstrap: started")
	defer w.evHandler("worker: bootstrap: completed")

	s := w.state
	w.download(ctx, "bootstrap", s.genesis.BootstrapResponses)

	s.mu.Lock()
	defer s.mu.Unlock()

	if end, height, exists := s.db.FindLongestChainEnd(); exists {
		s.miner.SetChainEnd(end, height, s.miner.CandidateTransactions())
		s.metrics.height.Set(float64(height))
	}

	difficulty := s.db.NextDifficulty(s.miner.CandidatePrevHash())
	s.miner.SetDifficulty(difficulty)
	s.metrics.difficulty.Set(float64(difficulty))

	s.updateBalance()
}

// resynchronize downloads the chain and the unconfirmed transactions again
// from every known peer and follows the longest chain.
func (w *worker) resynchronize(ctx context.Context) {
	w.evHandler("worker: resynchronize: started")
	defer w.evHandler("worker: resynchronize: completed")

	s := w.state
	w.download(ctx, "resynchronize", max(s.messenger.Peers().Count(), s.genesis.BootstrapResponses))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.followLongestChain()
	s.updateBalance()
}

// download asks the peers for their chain and their unconfirmed
// transactions. Collection ends after count responses or the bootstrap
// timeout.
func (w *worker) download(ctx context.Context, stage string, count int) {
	s := w.state
	timeout := s.genesis.BootstrapTimeout()

	n, err := s.messenger.SendRequest(ctx, GetBlockchainRequest{}, GetBlockchainResponse{}.TypeName(), count, timeout, func(in protocol.Inbound) {
		s.acceptChain(in.FromAddress, in.Message.(GetBlockchainResponse).Blockchain)
	})
	if err != nil {
		w.evHandler("worker: %s: blockchain: WARNING: %s", stage, err)
	}
	w.evHandler("worker: %s: blockchain: responses[%d]", stage, n)

	n, err = s.messenger.SendRequest(ctx, GetUnconfirmedTransactions{}, GetUnconfirmedTransactionsResponse{}.TypeName(), count, timeout, func(in protocol.Inbound) {
		s.acceptPool(in.FromAddress, in.Message.(GetUnconfirmedTransactionsResponse).Transactions)
	})
	if err != nil {
		w.evHandler("worker: %s: unconfirmed: WARNING: %s", stage, err)
	}
	w.evHandler("worker: %s: unconfirmed: responses[%d]", stage, n)
}

// acceptChain validates and records the blocks a peer sent. Blocks are
// handled oldest first, a valid child is always newer than its parent.
func (s *State) acceptChain(from string, blockchain map[string]database.Block) {
	blocks := make([]database.Block, 0, len(blockchain))
	for _, block := range blockchain {
		blocks = append(blocks, block)
	}

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].TimeStamp < blocks[j].TimeStamp
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted int
	for _, block := range blocks {
		if _, exists := s.db.Block(block.Hash(s.crypto)); exists {
			continue
		}

		if !s.db.ValidateBlock(block, s.db.NextDifficulty(block.PrevHash)) {
			s.metrics.blocks.WithLabelValues("rejected").Inc()
			continue
		}

		s.db.AddBlock(block)
		s.metrics.blocks.WithLabelValues("accepted").Inc()
		accepted++
	}

	s.evHandler("state: acceptChain: from[%s]: blocks[%d]: accepted[%d]", from, len(blocks), accepted)
}

// acceptPool queues the unconfirmed transactions a peer sent. The miner
// drops the ones that turn out to be invalid when it builds the candidate.
func (s *State) acceptPool(from string, trans []database.Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.miner.IncludeTransactions(trans)

	s.evHandler("state: acceptPool: from[%s]: trans[%d]", from, len(trans))
}
