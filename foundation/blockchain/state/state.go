// Package state is the core API for the blockchain node and implements all
// the business rules and processing. A State joins the network through a
// transport, downloads the chain from its peers, relays and validates the
// transactions and blocks it receives, and mines on the end of the longest
// chain it knows.
package state

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/miner"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

// maxShareRequests represents the max number of pending broadcasts that can
// be outstanding before new ones are dropped. To keep this simple, a buffered
// channel of this arbitrary number is being used.
const maxShareRequests = 100

// Set of error variables for node maintenance.
var (
	ErrAlreadyStarted = errors.New("blockchain maintenance already started")
	ErrNotStarted     = errors.New("blockchain maintenance not started")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the node.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	PrivateKey *ecdsa.PrivateKey
	Crypto     signature.Provider
	Genesis    genesis.Genesis
	Transport  protocol.Transport

	// Beneficiary receives the coinbase of mined blocks. It defaults to the
	// address of the private key.
	Beneficiary database.Address

	// Registerer receives the node metrics. A nil value keeps them private.
	Registerer prometheus.Registerer

	EvHandler EventHandler
}

// State manages the blockchain node.
type State struct {
	privateKey *ecdsa.PrivateKey
	publicKey  []byte
	address    database.Address
	crypto     signature.Provider
	genesis    genesis.Genesis
	evHandler  EventHandler
	metrics    *metrics

	// mu is the chain lock. It guards the database and the miner.
	mu    sync.Mutex
	db    *database.Database
	miner *miner.Miner

	messenger *protocol.Messenger
	sharing   chan protocol.Message
	resync    chan struct{}

	balance       atomic.Uint64
	balanceFeed   event.FeedOf[uint64]
	balanceSignal chan struct{}

	workerMu sync.Mutex
	worker   *worker

	wg       sync.WaitGroup
	shut     chan struct{}
	shutOnce sync.Once
}

// New constructs a node that is not yet connected to the network.
func New(cfg Config) (*State, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}

	if cfg.Transport == nil {
		return nil, errors.New("transport is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	crypto := cfg.Crypto
	if crypto == nil {
		crypto = signature.New()
	}

	gen := cfg.Genesis
	if gen.Difficulty == 0 {
		gen = genesis.Default()
	}

	address := database.PublicKeyToAddress(crypto, &cfg.PrivateKey.PublicKey)

	beneficiary := cfg.Beneficiary
	if beneficiary == "" {
		beneficiary = address
	}

	db, err := database.New(database.Config{
		Owner:     address,
		Crypto:    crypto,
		Genesis:   gen,
		EvHandler: database.EventHandler(ev),
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	messenger, err := protocol.NewMessenger(protocol.Config{
		Transport: cfg.Transport,
		Registry:  NewRegistry(),
		Peers:     peer.NewPeerSet(),
		EvHandler: protocol.EventHandler(ev),
	})
	if err != nil {
		return nil, fmt.Errorf("messenger: %w", err)
	}

	s := State{
		privateKey:    cfg.PrivateKey,
		publicKey:     signature.PublicKeyBytes(&cfg.PrivateKey.PublicKey),
		address:       address,
		crypto:        crypto,
		genesis:       gen,
		evHandler:     ev,
		metrics:       newMetrics(cfg.Registerer),
		db:            db,
		messenger:     messenger,
		sharing:       make(chan protocol.Message, maxShareRequests),
		resync:        make(chan struct{}, 1),
		balanceSignal: make(chan struct{}, 1),
		shut:          make(chan struct{}),
	}

	s.miner, err = miner.New(miner.Config{
		Crypto:       crypto,
		Genesis:      gen,
		Beneficiary:  beneficiary,
		Lock:         &s.mu,
		Lookup:       db.Transaction,
		Filter:       db.ValidateTransactions,
		OnBlockMined: s.onBlockMined,
		EvHandler:    miner.EventHandler(ev),
	})
	if err != nil {
		messenger.Shutdown()
		return nil, fmt.Errorf("miner: %w", err)
	}

	s.metrics.difficulty.Set(float64(gen.Difficulty))

	// The balance publisher lives as long as the node.
	s.wg.Add(1)
	hasStarted := make(chan bool)

	go func() {
		defer s.wg.Done()
		hasStarted <- true
		s.publishBalance()
	}()

	<-hasStarted

	return &s, nil
}

// Shutdown cleanly brings the node down. Calls after the first do nothing.
func (s *State) Shutdown() {
	s.shutOnce.Do(func() {
		s.evHandler("state: Shutdown: started")
		defer s.evHandler("state: Shutdown: completed")

		if err := s.StopBlockchainMaintenance(); err != nil && !errors.Is(err, ErrNotStarted) {
			s.evHandler("state: Shutdown: ERROR: %s", err)
		}

		s.messenger.Shutdown()

		close(s.shut)
		s.wg.Wait()
	})
}

// =============================================================================

// ConnectToNetwork joins the network the transport belongs to. When
// maintenance is running the chain is downloaded from the peers again.
func (s *State) ConnectToNetwork() error {
	if err := s.messenger.Connect(); err != nil {
		return err
	}

	s.workerMu.Lock()
	running := s.worker != nil
	s.workerMu.Unlock()

	if running {
		s.signalResync()
	}

	return nil
}

// DisconnectFromNetwork leaves the network. Maintenance keeps running and
// the node mines on its own chain. Blocks mined meanwhile reach the peers
// when they resynchronize after receiving a block whose parent they don't
// know.
func (s *State) DisconnectFromNetwork() error {
	return s.messenger.Disconnect()
}

// StartBlockchainMaintenance downloads the chain and the unconfirmed
// transactions from the peers, then starts listening to the network and
// mining. It returns once the work is scheduled, the download happens in
// the background.
func (s *State) StartBlockchainMaintenance() error {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	if s.worker != nil {
		return ErrAlreadyStarted
	}

	s.worker = runWorker(s)

	return nil
}

// StopBlockchainMaintenance stops mining and listening to the network and
// waits for every worker G to finish.
func (s *State) StopBlockchainMaintenance() error {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	if s.worker == nil {
		return ErrNotStarted
	}

	s.worker.shutdown()
	s.worker = nil

	return nil
}

// IsReady reports whether the chain download finished and the node is
// listening to the network.
func (s *State) IsReady() bool {
	s.workerMu.Lock()
	w := s.worker
	s.workerMu.Unlock()

	if w == nil {
		return false
	}

	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// =============================================================================

// signalShare queues the message for broadcast. If maxShareRequests
// messages are already queued the message is dropped.
func (s *State) signalShare(msg protocol.Message) {
	select {
	case s.sharing <- msg:
		s.evHandler("state: signalShare: %s share signaled", msg.TypeName())
	default:
		s.evHandler("state: signalShare: queue full, %s won't be shared", msg.TypeName())
	}
}

// signalResync asks the worker to download the chain from the peers again.
// Signals raised while a download is pending collapse into one.
func (s *State) signalResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// updateBalance publishes the owner's balance if it changed. The chain lock
// must be held.
func (s *State) updateBalance() {
	balance := s.db.Balance()
	s.metrics.balance.Set(float64(balance))

	if s.balance.Swap(balance) != balance {
		s.signalBalance()
	}
}

func (s *State) signalBalance() {
	select {
	case s.balanceSignal <- struct{}{}:
	default:
	}
}

// publishBalance sends the latest balance to the subscribers every time it
// is signaled. Signals raised while subscribers are slow collapse into one.
func (s *State) publishBalance() {
	s.evHandler("state: publishBalance: G started")
	defer s.evHandler("state: publishBalance: G completed")

	for {
		select {
		case <-s.balanceSignal:
			s.balanceFeed.Send(s.balance.Load())
		case <-s.shut:
			return
		}
	}
}
