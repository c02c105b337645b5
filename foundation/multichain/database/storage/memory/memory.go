// Package memory implements the ability to read and write blocks to memory
// using maps and sorted slices.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

type linkKey struct {
	publicKey signature.PublicKey
	seq       uint32
}

// Memory represents the storage implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	blocks map[signature.Hash]database.BlockData
	chains map[signature.PublicKey][]database.BlockData
	links  map[linkKey][]signature.Hash
	frauds map[signature.PublicKey][]database.Fraud
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	m := Memory{
		blocks: make(map[signature.Hash]database.BlockData),
		chains: make(map[signature.PublicKey][]database.BlockData),
		links:  make(map[linkKey][]signature.Hash),
		frauds: make(map[signature.PublicKey][]database.Fraud),
	}

	return &m, nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// ReadOnly is always false since the memory schema is always current.
func (m *Memory) ReadOnly() bool {
	return false
}

// Write stores the block and updates the indexes. The first block stored at
// a sequence number keeps its place in the chain index.
func (m *Memory) Write(blockData database.BlockData) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.blocks[blockData.Hash]; exists {
		return false, nil
	}
	m.blocks[blockData.Hash] = blockData

	block := blockData.Block

	chain := m.chains[block.PublicKey]
	i := search(chain, block.SequenceNumber)
	if i == len(chain) || chain[i].Block.SequenceNumber != block.SequenceNumber {
		chain = append(chain, database.BlockData{})
		copy(chain[i+1:], chain[i:])
		chain[i] = blockData
		m.chains[block.PublicKey] = chain
	}

	key := linkKey{publicKey: block.LinkPublicKey, seq: block.LinkSequenceNumber}
	m.links[key] = append(m.links[key], blockData.Hash)

	return true, nil
}

// GetByHash returns the block with the identity hash.
func (m *Memory) GetByHash(hash signature.Hash) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bd, exists := m.blocks[hash]
	if !exists {
		return database.BlockData{}, database.ErrNotFound
	}

	return bd, nil
}

// Get returns the block at the sequence number of the chain.
func (m *Memory) Get(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[publicKey]
	i := search(chain, seq)
	if i == len(chain) || chain[i].Block.SequenceNumber != seq {
		return database.BlockData{}, database.ErrNotFound
	}

	return chain[i], nil
}

// GetLatest returns the block with the highest sequence number.
func (m *Memory) GetLatest(publicKey signature.PublicKey) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[publicKey]
	if len(chain) == 0 {
		return database.BlockData{}, database.ErrNotFound
	}

	return chain[len(chain)-1], nil
}

// GetBefore returns the nearest block with a lower sequence number.
func (m *Memory) GetBefore(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[publicKey]
	i := search(chain, seq)
	if i == 0 {
		return database.BlockData{}, database.ErrNotFound
	}

	return chain[i-1], nil
}

// GetAfter returns the nearest block with a higher sequence number.
func (m *Memory) GetAfter(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[publicKey]
	i := search(chain, seq)
	if i < len(chain) && chain[i].Block.SequenceNumber == seq {
		i++
	}
	if i == len(chain) {
		return database.BlockData{}, database.ErrNotFound
	}

	return chain[i], nil
}

// GetSince returns up to limit blocks starting at the sequence number.
func (m *Memory) GetSince(publicKey signature.PublicKey, seq uint32, limit int) ([]database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.chains[publicKey]
	i := search(chain, seq)

	end := i + limit
	if end > len(chain) {
		end = len(chain)
	}

	out := make([]database.BlockData, end-i)
	copy(out, chain[i:end])

	return out, nil
}

// GetByLink returns the blocks naming the author and sequence as their mate,
// in insertion order.
func (m *Memory) GetByLink(linkPublicKey signature.PublicKey, linkSeq uint32) ([]database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := m.links[linkKey{publicKey: linkPublicKey, seq: linkSeq}]

	out := make([]database.BlockData, len(hashes))
	for i, hash := range hashes {
		out[i] = m.blocks[hash]
	}

	return out, nil
}

// Interactions aggregates the author's chain by counterparty.
func (m *Memory) Interactions(publicKey signature.PublicKey) ([]database.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make(map[signature.PublicKey]database.Interaction)
	for _, bd := range m.chains[publicKey] {
		in := sums[bd.Block.LinkPublicKey]
		in.LinkPublicKey = bd.Block.LinkPublicKey
		in.Up += bd.Block.Up
		in.Down += bd.Block.Down
		sums[bd.Block.LinkPublicKey] = in
	}

	out := make([]database.Interaction, 0, len(sums))
	for _, in := range sums {
		out = append(out, in)
	}

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].LinkPublicKey[:], out[j].LinkPublicKey[:]) < 0
	})

	return out, nil
}

// WriteFraud records the evidence unless the same evidence exists.
func (m *Memory) WriteFraud(fraud database.Fraud) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.frauds[fraud.PublicKey] {
		if f.Kind == fraud.Kind && f.Offending.Hash() == fraud.Offending.Hash() {
			return nil
		}
	}

	m.frauds[fraud.PublicKey] = append(m.frauds[fraud.PublicKey], fraud)

	return nil
}

// Frauds returns the evidence collected against the author.
func (m *Memory) Frauds(publicKey signature.PublicKey) ([]database.Fraud, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	frauds := m.frauds[publicKey]
	out := make([]database.Fraud, len(frauds))
	copy(out, frauds)

	return out, nil
}

// =============================================================================

// search returns the index of the first block with a sequence number of at
// least seq.
func search(chain []database.BlockData, seq uint32) int {
	return sort.Search(len(chain), func(i int) bool {
		return chain[i].Block.SequenceNumber >= seq
	})
}
