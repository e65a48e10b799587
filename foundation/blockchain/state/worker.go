package state

import (
	"context"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
)

// worker manages the maintenance workflows of the node: the chain download,
// the network listeners, mining and broadcasting.
type worker struct {
	state     *State
	wg        sync.WaitGroup
	shut      chan struct{}
	ready     chan struct{}
	cancel    context.CancelFunc
	evHandler EventHandler

	txs         <-chan protocol.Inbound
	blocks      <-chan protocol.Inbound
	chainReqs   <-chan protocol.Inbound
	poolReqs    <-chan protocol.Inbound
	unsubscribe []func()
}

// runWorker creates a worker and starts the maintenance workflows.
func runWorker(state *State) *worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := worker{
		state:     state,
		shut:      make(chan struct{}),
		ready:     make(chan struct{}),
		cancel:    cancel,
		evHandler: state.evHandler,
	}

	// Subscribe before the download starts so broadcasts arriving during
	// the download are queued and handled afterwards.
	w.txs = w.subscribe(state.messenger.Subscribe, TxMessage{}.TypeName())
	w.blocks = w.subscribe(state.messenger.Subscribe, BlockMessage{}.TypeName())
	w.chainReqs = w.subscribe(state.messenger.SubscribeRequests, GetBlockchainRequest{}.TypeName())
	w.poolReqs = w.subscribe(state.messenger.SubscribeRequests, GetUnconfirmedTransactions{}.TypeName())

	w.wg.Add(1)
	hasStarted := make(chan bool)

	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.maintenance(ctx)
	}()

	<-hasStarted

	return &w
}

// shutdown terminates the goroutines performing work.
func (w *worker) shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: cancel mining")
	w.cancel()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()

	for _, unsubscribe := range w.unsubscribe {
		unsubscribe()
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

func (w *worker) subscribe(fn func(string) (<-chan protocol.Inbound, func()), typeName string) <-chan protocol.Inbound {
	ch, unsubscribe := fn(typeName)
	w.unsubscribe = append(w.unsubscribe, unsubscribe)
	return ch
}

// =============================================================================

// maintenance downloads the chain and then starts the operational G's.
func (w *worker) maintenance(ctx context.Context) {
	w.evHandler("worker: maintenance: G started")
	defer w.evHandler("worker: maintenance: G completed")

	w.bootstrap(ctx)

	if w.isShutdown() {
		return
	}

	// Load the set of operations we need to run.
	operations := []func(){
		w.requestOperations,
		w.txOperations,
		w.blockOperations,
		w.shareOperations,
		func() { w.resyncOperations(ctx) },
		func() { w.state.miner.Run(ctx) },
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to report ready until we know all the G's are up
	// and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	close(w.ready)
	w.evHandler("worker: maintenance: node ready")
}

// =============================================================================

// requestOperations answers the requests of the peers.
func (w *worker) requestOperations() {
	w.evHandler("worker: requestOperations: G started")
	defer w.evHandler("worker: requestOperations: G completed")

	for {
		select {
		case req := <-w.chainReqs:
			if !w.isShutdown() {
				w.runChainRequestOperation(req)
			}
		case req := <-w.poolReqs:
			if !w.isShutdown() {
				w.runPoolRequestOperation(req)
			}
		case <-w.shut:
			w.evHandler("worker: requestOperations: received shut signal")
			return
		}
	}
}

// runChainRequestOperation sends every known block to the requester.
func (w *worker) runChainRequestOperation(req protocol.Inbound) {
	w.state.mu.Lock()
	blocks := w.state.db.Blocks()
	w.state.mu.Unlock()

	w.evHandler("worker: runChainRequestOperation: from[%s]: blocks[%d]", req.FromAddress, len(blocks))

	if err := w.state.messenger.SendResponse(req, GetBlockchainResponse{Blockchain: blocks}); err != nil {
		w.evHandler("worker: runChainRequestOperation: WARNING: %s", err)
	}
}

// runPoolRequestOperation sends the transactions not mined yet to the
// requester.
func (w *worker) runPoolRequestOperation(req protocol.Inbound) {
	w.state.mu.Lock()
	trans := w.state.miner.Transactions()
	w.state.mu.Unlock()

	w.evHandler("worker: runPoolRequestOperation: from[%s]: trans[%d]", req.FromAddress, len(trans))

	if err := w.state.messenger.SendResponse(req, GetUnconfirmedTransactionsResponse{Transactions: trans}); err != nil {
		w.evHandler("worker: runPoolRequestOperation: WARNING: %s", err)
	}
}

// =============================================================================

// txOperations handles the transactions broadcast by the peers.
func (w *worker) txOperations() {
	w.evHandler("worker: txOperations: G started")
	defer w.evHandler("worker: txOperations: G completed")

	for {
		select {
		case in := <-w.txs:
			if !w.isShutdown() {
				w.state.processTx(in.Message.(TxMessage).Tx)
			}
		case <-w.shut:
			w.evHandler("worker: txOperations: received shut signal")
			return
		}
	}
}

// blockOperations handles the blocks broadcast by the peers.
func (w *worker) blockOperations() {
	w.evHandler("worker: blockOperations: G started")
	defer w.evHandler("worker: blockOperations: G completed")

	for {
		select {
		case in := <-w.blocks:
			if !w.isShutdown() {
				w.state.processBlock(in.Message.(BlockMessage).Block)
			}
		case <-w.shut:
			w.evHandler("worker: blockOperations: received shut signal")
			return
		}
	}
}

// resyncOperations downloads the chain again every time it is signaled.
func (w *worker) resyncOperations(ctx context.Context) {
	w.evHandler("worker: resyncOperations: G started")
	defer w.evHandler("worker: resyncOperations: G completed")

	for {
		select {
		case <-w.state.resync:
			if !w.isShutdown() {
				w.resynchronize(ctx)
			}
		case <-w.shut:
			w.evHandler("worker: resyncOperations: received shut signal")
			return
		}
	}
}

// =============================================================================

// shareOperations broadcasts the queued messages to the network.
func (w *worker) shareOperations() {
	w.evHandler("worker: shareOperations: G started")
	defer w.evHandler("worker: shareOperations: G completed")

	for {
		select {
		case msg := <-w.state.sharing:
			if !w.isShutdown() {
				w.runShareOperation(msg)
			}
		case <-w.shut:
			w.evHandler("worker: shareOperations: received shut signal")
			return
		}
	}
}

// runShareOperation broadcasts a message to the peers.
func (w *worker) runShareOperation(msg protocol.Message) {
	if err := w.state.messenger.Broadcast(msg); err != nil {
		w.evHandler("worker: runShareOperation: %s: WARNING: %s", msg.TypeName(), err)
		return
	}

	w.state.metrics.peers.Set(float64(w.state.messenger.Peers().Count()))
}
