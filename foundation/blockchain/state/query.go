package state

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ethereum/go-ethereum/event"
)

// Address returns the address of the node's owner.
func (s *State) Address() database.Address {
	return s.address
}

// NetworkAddress returns the transport address of the node.
func (s *State) NetworkAddress() string {
	return s.messenger.Address()
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// IsConnected reports whether the node is part of the network.
func (s *State) IsConnected() bool {
	return s.messenger.IsConnected()
}

// KnownPeers returns the peers the node received packets from.
func (s *State) KnownPeers() []peer.Peer {
	return s.messenger.Peers().Copy(s.messenger.Address())
}

// =============================================================================

// Balance returns the sum of the owner's unspent outputs.
func (s *State) Balance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Balance()
}

// SubscribeBalance delivers the owner's balance on the channel every time it
// changes, starting with the current balance. The subscriber must keep
// receiving until it unsubscribes.
func (s *State) SubscribeBalance(ch chan<- uint64) event.Subscription {
	sub := s.balanceFeed.Subscribe(ch)
	s.signalBalance()

	return sub
}

// UserTransactions returns every confirmed transaction the owner sent or
// received, in the order they were confirmed.
func (s *State) UserTransactions() []database.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.UserTransactions()
}

// UnconfirmedTransactions returns the transactions waiting to be mined.
func (s *State) UnconfirmedTransactions() []database.Tx {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.miner.Transactions()
}

// LatestBlock returns the end of the longest known chain and its height.
// The boolean is false when no block is known.
func (s *State) LatestBlock() (database.Block, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.FindLongestChainEnd()
}

// Block returns the known block with the specified hash.
func (s *State) Block(hash string) (database.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Block(hash)
}

// Status returns the current status of the node.
func (s *State) Status() peer.PeerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash string
	end, height, exists := s.db.FindLongestChainEnd()
	if exists {
		hash = end.Hash(s.crypto)
	}

	status := peer.PeerStatus{
		Address:         s.messenger.Address(),
		LatestBlockHash: hash,
		Height:          height,
		Difficulty:      s.miner.Difficulty(),
		Mempool:         len(s.miner.Transactions()),
		Balance:         s.db.Balance(),
		KnownPeers:      s.messenger.Peers().Copy(s.messenger.Address()),
	}

	return status
}
