// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/multichain/business/web/errs"
	"github.com/ardanlabs/multichain/foundation/events"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/transport"
	"github.com/ardanlabs/multichain/foundation/multichain/worker"
	"github.com/ardanlabs/multichain/foundation/nameservice"
	"github.com/ardanlabs/multichain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of read only node endpoints.
type Handlers struct {
	Log       *zap.SugaredLogger
	State     *state.State
	Transport *transport.Transport
	Worker    *worker.Worker
	NS        *nameservice.NameService
	WS        websocket.Upgrader
	Evts      *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch, err := h.Evts.Subscribe(v.TraceID)
	if err != nil {
		return nil
	}
	defer h.Evts.Unsubscribe(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the identity of the node and its runtime counters.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pk := h.State.PublicKey()

	st := status{
		PublicKey: pk,
		Name:      h.NS.Lookup(pk),
		P2PHost:   h.Transport.Addr(),
		Peers:     len(h.State.KnownPeers().Copy(pk)),
		Transport: h.Transport.Stats(),
		Worker:    h.Worker.Stats(),
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Stats returns the statistics of a chain, our own when no key is given.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pk, err := h.publicKey(r)
	if err != nil {
		return err
	}

	s, err := h.State.GetStatistics(pk)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, stats{Statistics: s, Name: h.NS.Lookup(pk)}, http.StatusOK)
}

// Blocks returns up to limit blocks of a chain starting at the from sequence
// number.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pk, err := h.publicKey(r)
	if err != nil {
		return err
	}

	from, err := web.QueryUint(r, "from", 0)
	if err != nil || from > uint64(^uint32(0)) {
		return errs.NewTrusted(errBadQuery("from"), http.StatusBadRequest)
	}

	limit, err := web.QueryUint(r, "limit", state.MaxCrawlBatch)
	if err != nil || limit > state.MaxCrawlBatch {
		return errs.NewTrusted(errBadQuery("limit"), http.StatusBadRequest)
	}

	dbBlocks, err := h.State.QueryBlocks(pk, uint32(from), int(limit))
	if err != nil {
		return err
	}

	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = block{
			Block:    blk,
			Hash:     blk.Hash(),
			Name:     h.NS.Lookup(blk.PublicKey),
			LinkName: h.NS.Lookup(blk.LinkPublicKey),
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Frauds returns the evidence of misbehavior collected against a chain.
func (h Handlers) Frauds(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pk, err := h.publicKey(r)
	if err != nil {
		return err
	}

	frauds, err := h.State.QueryFrauds(pk)
	if err != nil {
		return err
	}

	if len(frauds) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, frauds, http.StatusOK)
}

// Peers returns the peers this node can reach.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	known := h.State.KnownPeers().Copy(h.State.PublicKey())

	peers := make([]peerInfo, len(known))
	for i, p := range known {
		peers[i] = peerInfo{
			PublicKey: p.PublicKey,
			Name:      h.NS.Lookup(p.PublicKey),
			Host:      p.Host,
		}
	}

	return web.Respond(ctx, w, peers, http.StatusOK)
}

// =============================================================================

// publicKey reads the pubkey route parameter, defaulting to our own key.
func (h Handlers) publicKey(r *http.Request) (signature.PublicKey, error) {
	param := web.Param(r, "pubkey")
	if param == "" {
		return h.State.PublicKey(), nil
	}

	pk, err := signature.ToPublicKey(param)
	if err != nil {
		return signature.PublicKey{}, errs.NewTrusted(err, http.StatusBadRequest)
	}

	return pk, nil
}

type errBadQuery string

func (e errBadQuery) Error() string {
	return "invalid query parameter " + string(e)
}
