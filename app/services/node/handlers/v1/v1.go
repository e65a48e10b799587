// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/utxochain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	Nodes map[string]*state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		Nodes: cfg.Nodes,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/peers", pbl.Peers)
	app.Handle(http.MethodGet, version, "/peers/:name/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/peers/:name/balance", pbl.Balance)
	app.Handle(http.MethodGet, version, "/peers/:name/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/peers/:name/transactions", pbl.Transactions)
	app.Handle(http.MethodGet, version, "/peers/:name/mempool", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/peers/:name/blocks/latest", pbl.LatestBlock)
	app.Handle(http.MethodGet, version, "/peers/:name/blocks/:hash", pbl.Block)
	app.Handle(http.MethodPost, version, "/peers/:name/tx/send", pbl.SendTransaction)
	app.Handle(http.MethodPost, version, "/peers/:name/connect", pbl.Connect)
	app.Handle(http.MethodPost, version, "/peers/:name/disconnect", pbl.Disconnect)
}
