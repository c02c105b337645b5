// Package private maintains the group of handlers for the node operator.
// These change what the node records and who it talks to.
package private

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/validate"
	"github.com/ardanlabs/multichain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SignBlock records a completed interaction with a counterparty and sends
// the half-block for countersigning.
func (h Handlers) SignBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req signRequest
	if err := web.Decode(r, &req); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	counterparty, err := signature.ToPublicKey(req.Counterparty)
	if err != nil {
		return err
	}

	h.Log.Infow("sign block", "traceid", v.TraceID, "counterparty", counterparty.Mid(), "up", req.Up, "down", req.Down)

	block, err := h.State.SignBlock(counterparty, req.Up, req.Down)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, signed{Block: block, Hash: block.Hash()}, http.StatusCreated)
}

// RequestCrawl asks a peer for its chain.
func (h Handlers) RequestCrawl(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req crawlRequest
	if err := web.Decode(r, &req); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	pk, err := signature.ToPublicKey(req.Peer)
	if err != nil {
		return err
	}

	if err := h.State.RequestCrawl(pk, req.Sequence); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: fmt.Sprintf("crawl of %s from %d requested", pk.Mid(), req.Sequence),
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// AddPeer makes a peer reachable by public key.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req peerRequest
	if err := web.Decode(r, &req); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	pk, err := signature.ToPublicKey(req.PublicKey)
	if err != nil {
		return err
	}

	p := peer.New(pk, req.Host)
	if pk == h.State.PublicKey() {
		return validate.FieldErrors{{Field: "public_key", Error: "public_key is the node's own key"}}
	}

	status := http.StatusOK
	if h.State.KnownPeers().Add(p) {
		status = http.StatusCreated
	}

	return web.Respond(ctx, w, p, status)
}

// Pending returns the half-blocks still waiting for a countersignature.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.State.Pending()

	blocks := make([]signed, len(pending))
	for i, block := range pending {
		blocks[i] = signed{Block: block, Hash: block.Hash()}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}
