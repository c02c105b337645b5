// Package state is the core API for the multichain node and implements the
// signing and crawl protocols on top of the chain database.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// MaxCrawlBatch is the number of blocks sent in response to one crawl
// request and the number accepted back per request.
const MaxCrawlBatch = 100

// crawlWindow is how long after a crawl request the responses are counted
// against that request.
const crawlWindow = time.Minute

// Set of errors returned by the upward API.
var (
	ErrNotInitiator     = errors.New("counterparty has the greater key and initiates")
	ErrSelfInteraction  = errors.New("interaction with our own key")
	ErrZeroInteraction  = errors.New("up and down are zero")
	ErrPendingHalfBlock = errors.New("half-block to the counterparty is still waiting for its countersignature")
	ErrQueueFull        = errors.New("outbound queue is full")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks and messages.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for scheduling the protocol work.
type Worker interface {
	Shutdown()
	SignalSend(env wire.Envelope) bool
}

// =============================================================================

// Config represents the configuration required to start
// the multichain node.
type Config struct {
	KeyPair    signature.KeyPair
	Database   *database.Database
	KnownPeers *peer.PeerSet
	EvHandler  EventHandler
}

// State manages the chain database and the protocol state per counterparty.
type State struct {
	keyPair    signature.KeyPair
	db         *database.Database
	knownPeers *peer.PeerSet
	evHandler  EventHandler
	mu         sync.Mutex

	pending map[signature.PublicKey]database.Block
	crawls  map[signature.PublicKey]crawlSession

	Worker Worker
}

// New constructs a new state for the node.
func New(cfg Config) (*State, error) {
	if cfg.Database == nil {
		return nil, errors.New("database is required")
	}
	if cfg.KeyPair.Private == nil {
		return nil, errors.New("key pair is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	state := State{
		keyPair:    cfg.KeyPair,
		db:         cfg.Database,
		knownPeers: knownPeers,
		evHandler:  ev,

		pending: make(map[signature.PublicKey]database.Block),
		crawls:  make(map[signature.PublicKey]crawlSession),
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database file is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all protocol activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// PublicKey returns the identity of this node.
func (s *State) PublicKey() signature.PublicKey {
	return s.keyPair.PublicKey
}

// KnownPeers returns the set of peers this node can reach.
func (s *State) KnownPeers() *peer.PeerSet {
	return s.knownPeers
}

// send hands the message to the worker for delivery. It fails with
// ErrQueueFull when the message could not be queued.
func (s *State) send(env wire.Envelope) error {
	if s.Worker == nil || !s.Worker.SignalSend(env) {
		s.evHandler("state: send: WARNING: queue full, %s to %s dropped", env.Message.Tag(), env.Peer.Mid())
		return fmt.Errorf("%s to %s: %w", env.Message.Tag(), env.Peer.Mid(), ErrQueueFull)
	}

	return nil
}
