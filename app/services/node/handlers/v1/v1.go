// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/multichain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/multichain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/multichain/foundation/events"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/transport"
	"github.com/ardanlabs/multichain/foundation/multichain/worker"
	"github.com/ardanlabs/multichain/foundation/nameservice"
	"github.com/ardanlabs/multichain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log       *zap.SugaredLogger
	State     *state.State
	Transport *transport.Transport
	Worker    *worker.Worker
	NS        *nameservice.NameService
	Evts      *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:       cfg.Log,
		State:     cfg.State,
		Transport: cfg.Transport,
		Worker:    cfg.Worker,
		NS:        cfg.NS,
		Evts:      cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/node/peers", pbl.Peers)
	app.Handle(http.MethodGet, version, "/stats", pbl.Stats)
	app.Handle(http.MethodGet, version, "/stats/:pubkey", pbl.Stats)
	app.Handle(http.MethodGet, version, "/blocks/list", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/list/:pubkey", pbl.Blocks)
	app.Handle(http.MethodGet, version, "/frauds/list/:pubkey", pbl.Frauds)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodPost, version, "/blocks/sign", prv.SignBlock)
	app.Handle(http.MethodGet, version, "/blocks/pending", prv.Pending)
	app.Handle(http.MethodPost, version, "/crawl", prv.RequestCrawl)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
}
