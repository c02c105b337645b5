// Package transport implements the overlay the protocol runs on: TCP
// connections between peers identified by public key, carrying length
// prefixed frames. Each connection starts with a hello frame that names the
// public key and the listen address of each side.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/peer"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Timeouts applied to the network operations.
const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
)

// ErrHandshake is returned when the remote side doesn't identify itself as
// the peer we expected.
var ErrHandshake = errors.New("handshake failed")

// EventHandler defines a function that is called when events
// occur on the connections.
type EventHandler func(v string, args ...any)

// Handler receives every frame read from a connection.
type Handler func(from signature.PublicKey, payload []byte)

// Config represents the configuration required to construct a transport.
type Config struct {
	Host      string
	KeyPair   signature.KeyPair
	EvHandler EventHandler
}

// Stats are the counters kept by the transport.
type Stats struct {
	FramesSent     uint64 `json:"frames_sent"`
	FramesReceived uint64 `json:"frames_received"`
	Connections    int    `json:"connections"`
}

// =============================================================================

type conn struct {
	nc   net.Conn
	peer peer.Peer
	mu   sync.Mutex
}

func (c *conn) write(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	c.nc.SetWriteDeadline(deadline)

	return wire.WriteFrame(c.nc, payload)
}

// Transport manages the listener and the open connections.
type Transport struct {
	host      string
	keyPair   signature.KeyPair
	evHandler EventHandler

	listener  net.Listener
	handler   Handler
	onConnect func(peer.Peer)

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu    sync.Mutex
	conns map[signature.PublicKey]*conn

	sent     atomic.Uint64
	received atomic.Uint64
}

// New constructs a transport for use. Nothing listens until Start.
func New(cfg Config) *Transport {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	return &Transport{
		host:      cfg.Host,
		keyPair:   cfg.KeyPair,
		evHandler: ev,
		ctx:       ctx,
		cancel:    cancel,
		group:     g,
		conns:     make(map[signature.PublicKey]*conn),
	}
}

// Start listens on the configured host. Every frame is passed to the
// handler and every peer completing a handshake to onConnect.
func (t *Transport) Start(handler Handler, onConnect func(peer.Peer)) error {
	listener, err := net.Listen("tcp", t.host)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	t.listener = listener
	t.handler = handler
	t.onConnect = onConnect

	t.evHandler("transport: listening on %s", listener.Addr())

	t.group.Go(t.acceptConnections)

	return nil
}

// Addr returns the address the transport listens on.
func (t *Transport) Addr() string {
	if t.listener == nil {
		return t.host
	}
	return t.listener.Addr().String()
}

// Shutdown closes the listener and every connection and waits for the
// readers to return.
func (t *Transport) Shutdown() error {
	t.evHandler("transport: shutdown: started")
	defer t.evHandler("transport: shutdown: completed")

	t.cancel()

	if t.listener != nil {
		t.listener.Close()
	}

	t.mu.Lock()
	for _, c := range t.conns {
		c.nc.Close()
	}
	t.mu.Unlock()

	return t.group.Wait()
}

// Stats returns the current counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		FramesSent:     t.sent.Load(),
		FramesReceived: t.received.Load(),
		Connections:    len(t.conns),
	}
}

// Send writes the payload to the peer, dialing it when no connection is
// open. A connection that fails a write is dropped.
func (t *Transport) Send(ctx context.Context, to peer.Peer, payload []byte) error {
	c, err := t.connection(ctx, to)
	if err != nil {
		return err
	}

	if err := c.write(ctx, payload); err != nil {
		t.drop(c)
		return fmt.Errorf("write to %s: %w", to, err)
	}

	t.sent.Inc()
	return nil
}

// =============================================================================

// acceptConnections handles incoming peer connections until the listener
// is closed.
func (t *Transport) acceptConnections() error {
	for {
		nc, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			t.evHandler("transport: accept: WARNING: %s", err)
			continue
		}

		t.group.Go(func() error {
			p, err := t.handshake(nc)
			if err != nil {
				t.evHandler("transport: accept: WARNING: %s: %s", nc.RemoteAddr(), err)
				nc.Close()
				return nil
			}

			t.register(&conn{nc: nc, peer: p})
			return nil
		})
	}
}

// connection returns the open connection to the peer or dials one.
func (t *Transport) connection(ctx context.Context, to peer.Peer) (*conn, error) {
	t.mu.Lock()
	c, exists := t.conns[to.PublicKey]
	t.mu.Unlock()

	if exists {
		return c, nil
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", to.Host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", to, err)
	}

	p, err := t.handshake(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("dial %s: %w", to, err)
	}

	if p.PublicKey != to.PublicKey {
		nc.Close()
		return nil, fmt.Errorf("%w: %s answered as %s", ErrHandshake, to, p.PublicKey.Mid())
	}

	c = &conn{nc: nc, peer: p}
	t.register(c)

	return c, nil
}

// handshake exchanges hello frames: our public key followed by the address
// we listen on.
func (t *Transport) handshake(nc net.Conn) (peer.Peer, error) {
	nc.SetDeadline(time.Now().Add(handshakeTimeout))
	defer nc.SetDeadline(time.Time{})

	hello := append(t.keyPair.PublicKey[:], t.Addr()...)
	if err := wire.WriteFrame(nc, hello); err != nil {
		return peer.Peer{}, fmt.Errorf("%w: %s", ErrHandshake, err)
	}

	payload, err := wire.ReadFrame(nc)
	if err != nil {
		return peer.Peer{}, fmt.Errorf("%w: %s", ErrHandshake, err)
	}

	if len(payload) < signature.PublicKeyLength || !signature.ValidPublicKey(payload[:signature.PublicKeyLength]) {
		return peer.Peer{}, fmt.Errorf("%w: bad hello", ErrHandshake)
	}

	var pk signature.PublicKey
	copy(pk[:], payload)

	if pk == t.keyPair.PublicKey {
		return peer.Peer{}, fmt.Errorf("%w: connected to ourselves", ErrHandshake)
	}

	host := string(payload[signature.PublicKeyLength:])
	if h, _, err := net.SplitHostPort(host); err == nil && (h == "" || h == "0.0.0.0" || h == "::") {
		// The remote listens on every interface, reach it where it came from.
		if remote, _, err := net.SplitHostPort(nc.RemoteAddr().String()); err == nil {
			_, port, _ := net.SplitHostPort(host)
			host = net.JoinHostPort(remote, port)
		}
	}

	return peer.New(pk, host), nil
}

// register keeps the connection for sends and starts reading from it.
func (t *Transport) register(c *conn) {
	t.mu.Lock()
	t.conns[c.peer.PublicKey] = c
	t.mu.Unlock()

	t.evHandler("transport: connected: %s", c.peer)

	if t.onConnect != nil {
		t.onConnect(c.peer)
	}

	t.group.Go(func() error {
		t.read(c)
		return nil
	})
}

// read passes every frame to the handler until the connection fails.
func (t *Transport) read(c *conn) {
	defer t.drop(c)

	for {
		payload, err := wire.ReadFrame(c.nc)
		if err != nil {
			if t.ctx.Err() == nil {
				t.evHandler("transport: read: %s: %s", c.peer, err)
			}
			return
		}

		t.received.Inc()

		if t.handler != nil {
			t.handler(c.peer.PublicKey, payload)
		}
	}
}

// drop closes the connection and forgets it unless it was replaced.
func (t *Transport) drop(c *conn) {
	c.nc.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[c.peer.PublicKey] == c {
		delete(t.conns, c.peer.PublicKey)
	}
}
