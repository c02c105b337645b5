// Package peer maintains the peer related information such as the set
// of known peers and how to reach them.
package peer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/BurntSushi/toml"
)

// ErrUnknownPeer is returned when no host is known for a public key.
var ErrUnknownPeer = errors.New("unknown peer")

// Peer represents information about a node in the network. The public key
// is the identity, the host is where it can currently be reached.
type Peer struct {
	PublicKey signature.PublicKey `json:"public_key"`
	Host      string              `json:"host"`
}

// New constructs a new peer value.
func New(publicKey signature.PublicKey, host string) Peer {
	return Peer{
		PublicKey: publicKey,
		Host:      host,
	}
}

// Match validates if the specified public key matches this peer.
func (p Peer) Match(publicKey signature.PublicKey) bool {
	return p.PublicKey == publicKey
}

// String implements the Stringer interface for logging.
func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.PublicKey.Mid(), p.Host)
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[signature.PublicKey]string
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[signature.PublicKey]string),
	}
}

// Add adds a new node to the set or moves a known one to a new host. It
// reports true when the set changed.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	host, exists := ps.set[peer.PublicKey]
	if exists && host == peer.Host {
		return false
	}

	ps.set[peer.PublicKey] = peer.Host
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(publicKey signature.PublicKey) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, publicKey)
}

// Lookup returns the peer known by the public key.
func (ps *PeerSet) Lookup(publicKey signature.PublicKey) (Peer, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	host, exists := ps.set[publicKey]
	if !exists {
		return Peer{}, fmt.Errorf("%w: %s", ErrUnknownPeer, publicKey.Mid())
	}

	return New(publicKey, host), nil
}

// Copy returns a list of the known peers except the specified one, ordered
// by public key.
func (ps *PeerSet) Copy(exclude signature.PublicKey) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for publicKey, host := range ps.set {
		peer := New(publicKey, host)
		if !peer.Match(exclude) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return bytes.Compare(peers[i].PublicKey[:], peers[j].PublicKey[:]) < 0
	})

	return peers
}

// =============================================================================

type peerFile struct {
	Peers []struct {
		PublicKey string `toml:"public_key"`
		Host      string `toml:"host"`
	} `toml:"peer"`
}

// LoadFile reads the bootstrap peers from a TOML file of the form:
//
//	[[peer]]
//	public_key = "02a1..."
//	host = "10.0.0.1:9080"
func LoadFile(path string) ([]Peer, error) {
	var pf peerFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("decoding peers file: %w", err)
	}

	peers := make([]Peer, 0, len(pf.Peers))
	for i, p := range pf.Peers {
		publicKey, err := signature.ToPublicKey(p.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
		if p.Host == "" {
			return nil, fmt.Errorf("peer %d: missing host", i)
		}

		peers = append(peers, New(publicKey, p.Host))
	}

	return peers, nil
}
