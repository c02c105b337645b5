// Package router wires inbound frames to the protocol handlers and delivers
// the messages they produce. Handlers address messages by public key, the
// router resolves the key to a host through the known peers.
package router

import (
	"context"
	"fmt"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// EventHandler defines a function that is called when events
// occur in the routing of messages.
type EventHandler func(v string, args ...any)

// Handlers is the behavior the router dispatches inbound messages to.
type Handlers interface {
	ReceivedHalfBlock(from signature.PublicKey, block database.Block) ([]wire.Envelope, error)
	ReceivedFullBlock(from signature.PublicKey, block database.Block, mate database.Block) ([]wire.Envelope, error)
	ReceivedCrawlRequest(from signature.PublicKey, seq uint32) ([]wire.Envelope, error)
	ReceivedCrawlResume(from signature.PublicKey) ([]wire.Envelope, error)
}

// Transport is the overlay collaborator that moves payloads to a host.
type Transport interface {
	Send(ctx context.Context, to peer.Peer, payload []byte) error
}

// Scheduler runs the inbound work one message at a time.
type Scheduler interface {
	SignalReceive(env wire.Envelope) bool
	SignalConnect(publicKey signature.PublicKey)
}

// =============================================================================

// Config represents the configuration required to construct a router.
type Config struct {
	Handlers   Handlers
	KnownPeers *peer.PeerSet
	Transport  Transport
	EvHandler  EventHandler
}

// Router decodes, dispatches and delivers messages.
type Router struct {
	handlers   Handlers
	knownPeers *peer.PeerSet
	transport  Transport
	evHandler  EventHandler

	// The Scheduler is registered by worker.Run.
	Scheduler Scheduler
}

// New constructs a router for use.
func New(cfg Config) *Router {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &Router{
		handlers:   cfg.Handlers,
		knownPeers: cfg.KnownPeers,
		transport:  cfg.Transport,
		evHandler:  ev,
	}
}

// Receive is called by the transport for every frame. Payloads that don't
// decode are logged and dropped. The rest is queued on the scheduler.
func (r *Router) Receive(from signature.PublicKey, payload []byte) {
	msg, err := wire.Decode(payload)
	if err != nil {
		r.evHandler("router: receive: WARNING: from %s: %s", from.Mid(), err)
		return
	}

	if r.Scheduler == nil {
		r.evHandler("router: receive: WARNING: no scheduler, %s from %s dropped", msg.Tag(), from.Mid())
		return
	}

	if !r.Scheduler.SignalReceive(wire.Envelope{Peer: from, Message: msg}) {
		r.evHandler("router: receive: WARNING: queue full, %s from %s dropped", msg.Tag(), from.Mid())
	}
}

// Connected is called by the transport when a peer completed the handshake.
// The peer is remembered and the scheduler is told about it.
func (r *Router) Connected(p peer.Peer) {
	if !r.knownPeers.Add(p) {
		return
	}

	r.evHandler("router: connected: new peer %s", p)

	if r.Scheduler != nil {
		r.Scheduler.SignalConnect(p.PublicKey)
	}
}

// Dispatch runs the handler for the message and delivers what it produced.
// Delivery failures are logged, they don't fail the dispatch.
func (r *Router) Dispatch(ctx context.Context, env wire.Envelope) error {
	var out []wire.Envelope
	var err error

	switch msg := env.Message.(type) {
	case wire.HalfBlock:
		out, err = r.handlers.ReceivedHalfBlock(env.Peer, msg.Block)
	case wire.FullBlock:
		out, err = r.handlers.ReceivedFullBlock(env.Peer, msg.Block, msg.Mate)
	case wire.Crawl:
		out, err = r.handlers.ReceivedCrawlRequest(env.Peer, msg.Sequence)
	case wire.Resume:
		out, err = r.handlers.ReceivedCrawlResume(env.Peer)
	default:
		return fmt.Errorf("unexpected message %T from %s", msg, env.Peer.Mid())
	}

	if err != nil {
		return fmt.Errorf("handling %s from %s: %w", env.Message.Tag(), env.Peer.Mid(), err)
	}

	for _, o := range out {
		if err := r.Deliver(ctx, o); err != nil {
			r.evHandler("router: dispatch: WARNING: %s", err)
		}
	}

	return nil
}

// Deliver resolves the peer and hands the encoded message to the transport.
func (r *Router) Deliver(ctx context.Context, env wire.Envelope) error {
	p, err := r.knownPeers.Lookup(env.Peer)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", env.Message.Tag(), err)
	}

	if err := r.transport.Send(ctx, p, wire.Encode(env.Message)); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", env.Message.Tag(), p, err)
	}

	return nil
}
