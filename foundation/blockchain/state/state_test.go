package state_test

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/protocol"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/logger"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	ownerHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	otherHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
)

const baseReward = 101

// =============================================================================

func Test_Mining(t *testing.T) {
	t.Log("Given the need to mine and share the blockchain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a node mines on its own.", testID)
		{
			ts := newTestSetup(t, miningGenesis())
			first := ts.newNode(t, mustKey(t, ownerHexKey), "")

			balances := make(chan uint64, 256)
			sub := first.SubscribeBalance(balances)
			defer sub.Unsubscribe()

			if err := first.StartBlockchainMaintenance(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start maintenance: %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to start maintenance.", success, testID)

			if err := first.StartBlockchainMaintenance(); !errors.Is(err, state.ErrAlreadyStarted) {
				t.Fatalf("\t%s\tTest %d:\tShould not start maintenance twice: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not start maintenance twice.", success, testID)

			if !waitBalance(balances, 10*time.Second, func(b uint64) bool { return b > 0 }) {
				t.Fatalf("\t%s\tTest %d:\tShould be rewarded for mining.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be rewarded for mining.", success, testID)

			trans := first.UserTransactions()
			if len(trans) == 0 || !trans[0].IsCoinbase() {
				t.Fatalf("\t%s\tTest %d:\tShould list the coinbase as a user transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould list the coinbase as a user transaction.", success, testID)

			testID++
			t.Logf("\tTest %d:\tWhen a second node joins the network.", testID)

			before := first.Status().Height

			second := ts.newNode(t, mustKey(t, otherHexKey), "")
			if err := second.StartBlockchainMaintenance(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start maintenance: %s", failed, testID, err)
			}

			if !waitFor(10*time.Second, second.IsReady) {
				t.Fatalf("\t%s\tTest %d:\tShould finish the download.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould finish the download.", success, testID)

			status := second.Status()
			if status.Height < before {
				t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, status.Height)
				t.Logf("\t%s\tTest %d:\texp: >= %d", failed, testID, before)
				t.Fatalf("\t%s\tTest %d:\tShould download the chain of the first node.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould download the chain of the first node.", success, testID)

			if len(status.KnownPeers) == 0 || status.KnownPeers[0].Address != first.NetworkAddress() {
				t.Fatalf("\t%s\tTest %d:\tShould know the first node as a peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould know the first node as a peer.", success, testID)

			if err := second.StopBlockchainMaintenance(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to stop maintenance: %s", failed, testID, err)
			}
			if second.IsReady() {
				t.Fatalf("\t%s\tTest %d:\tShould not be ready once stopped.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to stop maintenance.", success, testID)
		}
	}
}

func Test_Shutdown(t *testing.T) {
	t.Log("Given the need to bring a node down.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen shutting down a running node more than once.", testID)
		{
			ts := newTestSetup(t, miningGenesis())
			node := ts.newNode(t, mustKey(t, ownerHexKey), "")

			if err := node.StartBlockchainMaintenance(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to start maintenance: %s", failed, testID, err)
			}

			node.Shutdown()
			node.Shutdown()
			t.Logf("\t%s\tTest %d:\tShould be able to shut down twice.", success, testID)

			if err := node.StopBlockchainMaintenance(); !errors.Is(err, state.ErrNotStarted) {
				t.Fatalf("\t%s\tTest %d:\tShould have stopped maintenance: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have stopped maintenance.", success, testID)
		}
	}
}

func Test_MakeTransaction(t *testing.T) {
	t.Log("Given the need to send coins to another address.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the node owns a coinbase of 100.", testID)
		{
			fs := newForkSetup(t)

			if b := fs.node.Balance(); b != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould have a balance of 100: got %d", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould have a balance of 100.", success, testID)

			if _, err := fs.node.MakeTransaction(1, "not-an-address", 0); !errors.Is(err, state.ErrInvalidRecipient) {
				t.Fatalf("\t%s\tTest %d:\tShould reject an invalid recipient: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject an invalid recipient.", success, testID)

			if _, err := fs.node.MakeTransaction(0, fs.other, 0); !errors.Is(err, state.ErrNothingToSend) {
				t.Fatalf("\t%s\tTest %d:\tShould reject sending nothing: %v", failed, testID, err)
			}
			if len(fs.node.UnconfirmedTransactions()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not queue a transaction for nothing.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject sending nothing.", success, testID)

			result, err := fs.node.MakeTransaction(96, fs.other, 5)
			if err != nil || result != state.SendInsufficientFunds {
				t.Fatalf("\t%s\tTest %d:\tShould report insufficient funds: result[%s] err[%v]", failed, testID, result, err)
			}
			if b := fs.node.Balance(); b != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the balance: got %d", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould report insufficient funds and keep the balance.", success, testID)

			result, err = fs.node.MakeTransaction(50, fs.other, 5)
			if err != nil || result != state.SendSuccess {
				t.Fatalf("\t%s\tTest %d:\tShould send 50 with a fee of 5: result[%s] err[%v]", failed, testID, result, err)
			}
			t.Logf("\t%s\tTest %d:\tShould send 50 with a fee of 5.", success, testID)

			if b := fs.node.Balance(); b != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould commit the spent coinbase: got %d", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould commit the spent coinbase.", success, testID)

			tx := fs.pending(t)
			exp := []database.Output{
				{Amount: 50, Recipient: fs.other},
				{Amount: 45, Recipient: fs.owner},
			}
			if len(tx.Outputs) != 2 || tx.Outputs[0] != exp[0] || tx.Outputs[1] != exp[1] {
				t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, tx.Outputs)
				t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, exp)
				t.Fatalf("\t%s\tTest %d:\tShould pay the recipient and return the change.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould pay the recipient and return the change.", success, testID)

			if !tx.VerifySignature(fs.crypto) {
				t.Fatalf("\t%s\tTest %d:\tShould sign the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould sign the transaction.", success, testID)
		}
	}
}

func Test_Reorg(t *testing.T) {
	t.Log("Given the need to follow the longest chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a longer fork replaces the chain end.", testID)
		{
			fs := newForkSetup(t)

			if result, err := fs.node.MakeTransaction(50, fs.other, 5); err != nil || result != state.SendSuccess {
				t.Fatalf("\t%s\tTest %d:\tShould send 50 with a fee of 5: result[%s] err[%v]", failed, testID, result, err)
			}
			txID := fs.pending(t).Hash(fs.crypto)

			b2aHash := fs.b2a.Hash(fs.crypto)
			b2b := fs.mineBlock(fs.b1.Hash(fs.crypto), fs.forkTime, 2, func(hash string) bool { return hash > b2aHash })
			b3b := fs.mineBlock(b2b.Hash(fs.crypto), b2b.TimeStamp+1, 3, nil)

			fs.seeder.Broadcast(state.BlockMessage{Block: b2b})
			fs.seeder.Broadcast(state.BlockMessage{Block: b3b})

			end := b3b.Hash(fs.crypto)
			if !waitFor(5*time.Second, func() bool { return fs.node.Status().LatestBlockHash == end }) {
				t.Fatalf("\t%s\tTest %d:\tShould move to the end of the longer fork.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould move to the end of the longer fork.", success, testID)

			var found bool
			for _, tx := range fs.node.UnconfirmedTransactions() {
				if tx.Hash(fs.crypto) == txID {
					found = true
				}
			}
			if !found {
				t.Fatalf("\t%s\tTest %d:\tShould keep the unmined transaction pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the unmined transaction pending.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a fork of equal height wins the tie.", testID)
		{
			fs := newForkSetup(t)

			balances := make(chan uint64, 256)
			sub := fs.node.SubscribeBalance(balances)
			defer sub.Unsubscribe()

			if result, err := fs.node.MakeTransaction(50, fs.other, 5); err != nil || result != state.SendSuccess {
				t.Fatalf("\t%s\tTest %d:\tShould send 50 with a fee of 5: result[%s] err[%v]", failed, testID, result, err)
			}
			txID := fs.pending(t).Hash(fs.crypto)

			b2aHash := fs.b2a.Hash(fs.crypto)
			b2b := fs.mineBlock(fs.b1.Hash(fs.crypto), fs.forkTime, 2, func(hash string) bool { return hash < b2aHash })

			fs.seeder.Broadcast(state.BlockMessage{Block: b2b})

			if !waitBalance(balances, 10*time.Second, func(b uint64) bool { return b == 45 }) {
				t.Fatalf("\t%s\tTest %d:\tShould mine the leftover on the new chain end and own the change.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the leftover on the new chain end and own the change.", success, testID)

			var sent bool
			for _, tx := range fs.node.UserTransactions() {
				if tx.Hash(fs.crypto) == txID {
					sent = true
				}
			}
			if !sent {
				t.Fatalf("\t%s\tTest %d:\tShould confirm the transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould confirm the transaction.", success, testID)

			if !fs.descendsFrom(b2b.Hash(fs.crypto)) {
				t.Fatalf("\t%s\tTest %d:\tShould extend the winning fork.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould extend the winning fork.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a block arrives whose parent the node doesn't know.", testID)
		{
			fs := newForkSetup(t)

			b2b := fs.mineBlock(fs.b1.Hash(fs.crypto), fs.forkTime, 2, nil)
			b3b := fs.mineBlock(b2b.Hash(fs.crypto), b2b.TimeStamp+1, 3, nil)

			// Only the new peer knows b2b, the node hears about b3b alone.
			peer := fs.newSeeder(t, fs.b1, b2b, b3b)
			peer.Broadcast(state.BlockMessage{Block: b3b})

			end := b3b.Hash(fs.crypto)
			if !waitFor(10*time.Second, func() bool { return fs.node.Status().LatestBlockHash == end }) {
				t.Fatalf("\t%s\tTest %d:\tShould download the missing parent and move to the longer fork.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould download the missing parent and move to the longer fork.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the node connects again after missing blocks.", testID)
		{
			fs := newForkSetup(t)

			if err := fs.node.DisconnectFromNetwork(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to disconnect: %s", failed, testID, err)
			}

			b2b := fs.mineBlock(fs.b1.Hash(fs.crypto), fs.forkTime, 2, nil)
			b3b := fs.mineBlock(b2b.Hash(fs.crypto), b2b.TimeStamp+1, 3, nil)
			fs.newSeeder(t, fs.b1, b2b, b3b)

			// The old seeder would answer first with the shorter chain.
			if err := fs.seeder.Disconnect(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to disconnect the seeder: %s", failed, testID, err)
			}

			if err := fs.node.ConnectToNetwork(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect again: %s", failed, testID, err)
			}

			end := b3b.Hash(fs.crypto)
			if !waitFor(15*time.Second, func() bool { return fs.node.Status().LatestBlockHash == end }) {
				t.Fatalf("\t%s\tTest %d:\tShould download the chain it missed.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould download the chain it missed.", success, testID)
		}
	}
}

// =============================================================================

type testSetup struct {
	crypto   signature.Provider
	genesis  genesis.Genesis
	internet *memory.Internet
	log      *zap.SugaredLogger
}

// miningGenesis keeps the difficulty at 1 so blocks are mined within
// milliseconds.
func miningGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 1
	gen.BaseReward = baseReward
	gen.TargetBlockTimeMS = 1
	gen.MiningBudgetMS = 50
	gen.BootstrapTimeoutMS = 100

	return gen
}

// forkGenesis adjusts the difficulty over two blocks towards a block time
// that can't be reached. A block stamped a millisecond after its parent
// makes the next difficulty unreachable, a block stamped days after its
// parent keeps it at 1.
func forkGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Difficulty = 1
	gen.BaseReward = baseReward
	gen.TargetBlockTimeMS = 1_000_000_000_000
	gen.DifficultyWindow = 2
	gen.MiningBudgetMS = 50
	gen.BootstrapTimeoutMS = 5_000

	return gen
}

func newTestSetup(t *testing.T, gen genesis.Genesis) *testSetup {
	log, err := logger.New("TEST")
	if err != nil {
		t.Fatalf("Should be able to construct the logger: %s", err)
	}
	t.Cleanup(func() { log.Sync() })

	return &testSetup{
		crypto:   signature.New(),
		genesis:  gen,
		internet: memory.New(nil),
		log:      log,
	}
}

func (ts *testSetup) newNode(t *testing.T, pk *ecdsa.PrivateKey, beneficiary database.Address) *state.State {
	ev := func(v string, args ...any) {
		ts.log.Infow(fmt.Sprintf(v, args...), "traceid", "00000000-0000-0000-0000-000000000000")
	}

	node, err := state.New(state.Config{
		PrivateKey:  pk,
		Crypto:      ts.crypto,
		Genesis:     ts.genesis,
		Transport:   ts.internet.NewClient("main", 0),
		Beneficiary: beneficiary,
		EvHandler:   ev,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the node: %s", err)
	}
	t.Cleanup(node.Shutdown)

	if err := node.ConnectToNetwork(); err != nil {
		t.Fatalf("Should be able to connect the node: %s", err)
	}

	return node
}

// newSeeder constructs a peer that answers every download request with the
// specified blocks and no unconfirmed transactions.
func (ts *testSetup) newSeeder(t *testing.T, blocks ...database.Block) *protocol.Messenger {
	m, err := protocol.NewMessenger(protocol.Config{
		Transport: ts.internet.NewClient("main", 0),
		Registry:  state.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("Should be able to construct the seeder: %s", err)
	}
	t.Cleanup(m.Shutdown)

	if err := m.Connect(); err != nil {
		t.Fatalf("Should be able to connect the seeder: %s", err)
	}

	chain := make(map[string]database.Block, len(blocks))
	for _, block := range blocks {
		chain[block.Hash(ts.crypto)] = block
	}

	chainReqs, unsubscribeChain := m.SubscribeRequests(state.GetBlockchainRequest{}.TypeName())
	poolReqs, unsubscribePool := m.SubscribeRequests(state.GetUnconfirmedTransactions{}.TypeName())

	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		unsubscribeChain()
		unsubscribePool()
	})

	go func() {
		for {
			select {
			case req := <-chainReqs:
				m.SendResponse(req, state.GetBlockchainResponse{Blockchain: chain})
			case req := <-poolReqs:
				m.SendResponse(req, state.GetUnconfirmedTransactionsResponse{})
			case <-done:
				return
			}
		}
	}()

	return m
}

// =============================================================================

// forkSetup is a node that downloaded the chain b1 <- b2a from a seeder. The
// coinbase of b1 pays 100 to the node's owner. Because b2a is stamped a
// millisecond after b1, the node can't mine on top of b2a.
type forkSetup struct {
	*testSetup
	node     *state.State
	seeder   *protocol.Messenger
	owner    database.Address
	other    database.Address
	b1       database.Block
	b2a      database.Block
	forkTime uint64
}

func newForkSetup(t *testing.T) *forkSetup {
	ts := newTestSetup(t, forkGenesis())

	ownerKey := mustKey(t, ownerHexKey)
	otherKey := mustKey(t, otherHexKey)

	fs := forkSetup{
		testSetup: ts,
		owner:     database.PublicKeyToAddress(ts.crypto, &ownerKey.PublicKey),
		other:     database.PublicKeyToAddress(ts.crypto, &otherKey.PublicKey),
	}

	now := uint64(time.Now().UnixMilli())
	fs.forkTime = now - uint64((2 * time.Hour).Milliseconds())

	start := now - uint64((30 * 24 * time.Hour).Milliseconds())
	fs.b1 = fs.mineBlockTo(database.GenesisParent, start, 1, fs.owner, nil)
	fs.b2a = fs.mineBlock(fs.b1.Hash(ts.crypto), start+1, 2, nil)

	fs.seeder = ts.newSeeder(t, fs.b1, fs.b2a)

	// The node's own coinbase goes to the other address so the owner's
	// balance only moves with the transactions under test.
	fs.node = ts.newNode(t, ownerKey, fs.other)
	if err := fs.node.StartBlockchainMaintenance(); err != nil {
		t.Fatalf("Should be able to start maintenance: %s", err)
	}

	if !waitFor(10*time.Second, fs.node.IsReady) {
		t.Fatalf("Should be able to download the chain.")
	}

	if _, height, _ := fs.node.LatestBlock(); height != 2 {
		t.Fatalf("Should download both blocks: got height %d", height)
	}

	return &fs
}

// mineBlock solves a block paying the height's reward to the other address.
func (fs *forkSetup) mineBlock(prevHash string, timeStamp uint64, height int, accept func(hash string) bool) database.Block {
	return fs.mineBlockTo(prevHash, timeStamp, height, fs.other, accept)
}

// mineBlockTo solves a block at difficulty 1 until its hash is accepted.
func (fs *forkSetup) mineBlockTo(prevHash string, timeStamp uint64, height int, to database.Address, accept func(hash string) bool) database.Block {
	coinbase := database.NewCoinbaseTx(database.BlockReward(baseReward, height), to)

	blk := database.NewBlock(prevHash, []database.Tx{coinbase})
	blk.TimeStamp = timeStamp

	for {
		hash := blk.Hash(fs.crypto)
		if database.IsHashSolved(1, hash) && (accept == nil || accept(hash)) {
			return blk
		}
		blk.Nonce++
	}
}

// pending returns the transaction the owner sent that is waiting to be mined.
func (fs *forkSetup) pending(t *testing.T) database.Tx {
	for _, tx := range fs.node.UnconfirmedTransactions() {
		if tx.SenderAddress(fs.crypto) == fs.owner {
			return tx
		}
	}

	t.Fatalf("Should find the sent transaction waiting to be mined.")
	return database.Tx{}
}

// descendsFrom reports whether the end of the node's longest chain has the
// block with the specified hash as an ancestor.
func (fs *forkSetup) descendsFrom(hash string) bool {
	block, _, exists := fs.node.LatestBlock()
	for exists {
		if block.Hash(fs.crypto) == hash {
			return true
		}
		block, exists = fs.node.Block(block.PrevHash)
	}

	return false
}

// =============================================================================

func waitFor(timeout time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}

	return fn()
}

func waitBalance(balances <-chan uint64, timeout time.Duration, fn func(uint64) bool) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case b := <-balances:
			if fn(b) {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}

func mustKey(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}

	return pk
}
