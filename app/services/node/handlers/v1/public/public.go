// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// balanceBuffer bounds the balance updates a websocket client can fall
// behind by before the node's balance publisher waits on it.
const balanceBuffer = 16

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	Nodes map[string]*state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Peers returns the nodes served by this process.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	names := make([]string, 0, len(h.Nodes))
	for name := range h.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	peers := make([]peerInfo, len(names))
	for i, name := range names {
		node := h.Nodes[name]
		peers[i] = peerInfo{
			Name:           name,
			Address:        node.Address(),
			NetworkAddress: node.NetworkAddress(),
			Connected:      node.IsConnected(),
			Ready:          node.IsReady(),
		}
	}

	return web.Respond(ctx, w, peers, http.StatusOK)
}

// Status returns the chain and network status of a node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, node.Status(), http.StatusOK)
}

// Balance returns the spendable balance of a node's owner.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name, node, err := h.node(r)
	if err != nil {
		return err
	}

	b := balance{
		Name:    name,
		Address: node.Address(),
		Balance: node.Balance(),
	}

	return web.Respond(ctx, w, b, http.StatusOK)
}

// Transactions returns the confirmed transactions the owner of a node sent
// or received.
func (h Handlers) Transactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toTxs(signature.New(), h.NS, node.UserTransactions()), http.StatusOK)
}

// Mempool returns the transactions a node is waiting to mine.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toTxs(signature.New(), h.NS, node.UnconfirmedTransactions()), http.StatusOK)
}

// LatestBlock returns the end of the longest chain a node knows.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	dbBlock, height, exists := node.LatestBlock()
	if !exists {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlock(signature.New(), h.NS, dbBlock, height), http.StatusOK)
}

// Block returns a block a node knows by its hash.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	hash := web.Param(r, "hash")

	dbBlock, exists := node.Block(hash)
	if !exists {
		return errs.NewTrusted(fmt.Errorf("block %q not found", hash), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlock(signature.New(), h.NS, dbBlock, 0), http.StatusOK)
}

// SendTransaction has a node send coins from its owner.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	name, node, err := h.node(r)
	if err != nil {
		return err
	}

	var req SendRequest
	if err := web.Decode(r, &req); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	recipient, exists := h.NS.Address(req.To)
	if !exists {
		recipient = database.Address(req.To)
	}

	h.Log.Infow("send tran", "traceid", v.TraceID, "from", name, "to", recipient, "amount", req.Amount, "fee", req.Fee)

	result, err := node.MakeTransaction(req.Amount, recipient, req.Fee)
	if err != nil {
		if errors.Is(err, state.ErrInvalidRecipient) || errors.Is(err, state.ErrNothingToSend) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return fmt.Errorf("send: %w", err)
	}

	if result == state.SendInsufficientFunds {
		return errs.NewTrusted(errors.New(result.String()), http.StatusBadRequest)
	}

	return web.Respond(ctx, w, sendResponse{Status: result.String()}, http.StatusOK)
}

// Connect has a node join the network.
func (h Handlers) Connect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	if err := node.ConnectToNetwork(); err != nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return web.Respond(ctx, w, node.Status(), http.StatusOK)
}

// Disconnect has a node leave the network. Its chain and mining continue.
func (h Handlers) Disconnect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	_, node, err := h.node(r)
	if err != nil {
		return err
	}

	if err := node.DisconnectFromNetwork(); err != nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	return web.Respond(ctx, w, node.Status(), http.StatusOK)
}

// Events handles a web socket to provide events to a client. Without a
// peer name the events of every node are streamed. With one, the node's
// balance changes are streamed as well.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	topic := events.AllTopics
	var balances chan uint64

	if web.Param(r, "name") != "" {
		name, node, err := h.node(r)
		if err != nil {
			return err
		}

		topic = name
		balances = make(chan uint64, balanceBuffer)

		sub := node.SubscribeBalance(balances)
		defer sub.Unsubscribe()
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID, topic)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(event{Type: "event", Peer: topic, Message: msg}); err != nil {
				return nil
			}

		case b := <-balances:
			if err := c.WriteJSON(event{Type: "balance", Peer: topic, Balance: &b}); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

func (h Handlers) node(r *http.Request) (string, *state.State, error) {
	name := web.Param(r, "name")

	node, exists := h.Nodes[name]
	if !exists {
		return "", nil, errs.NewTrusted(fmt.Errorf("peer %q not found", name), http.StatusNotFound)
	}

	return name, node, nil
}
