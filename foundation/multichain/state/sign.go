package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// SignBlock records a completed interaction with the counterparty. The new
// half-block is stored locally and queued for the counterparty before this
// returns. Only the party with the greater public key initiates and only one
// half-block per counterparty waits for a countersignature at a time.
//
// ErrQueueFull is returned with the block when it was stored but could not
// be queued. The counterparty picks it up on its next crawl.
func (s *State) SignBlock(counterparty signature.PublicKey, up uint64, down uint64) (database.Block, error) {
	our := s.keyPair.PublicKey

	if !signature.ValidPublicKey(counterparty[:]) {
		return database.Block{}, signature.ErrInvalidPublicKey
	}

	switch cmp := bytes.Compare(our[:], counterparty[:]); {
	case cmp == 0:
		return database.Block{}, ErrSelfInteraction
	case cmp < 0:
		return database.Block{}, ErrNotInitiator
	}

	if up == 0 && down == 0 {
		return database.Block{}, ErrZeroInteraction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, exists := s.pending[counterparty]; exists {
		return database.Block{}, fmt.Errorf("%s: %w", prev, ErrPendingHalfBlock)
	}

	block, err := database.CreateNext(s.db, our, counterparty, up, down)
	if err != nil {
		return database.Block{}, fmt.Errorf("create block: %w", err)
	}

	if block, err = block.Sign(s.keyPair.Private); err != nil {
		return database.Block{}, err
	}

	if _, err := s.db.Add(block); err != nil {
		return database.Block{}, fmt.Errorf("add block: %w", err)
	}

	s.pending[counterparty] = block

	s.evHandler("state: SignBlock: sending %s", block)
	if err := s.send(wire.Envelope{Peer: counterparty, Message: wire.HalfBlock{Block: block}}); err != nil {
		return block, err
	}

	return block, nil
}

// Pending returns the half-blocks still waiting for a countersignature.
func (s *State) Pending() []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]database.Block, 0, len(s.pending))
	for _, block := range s.pending {
		blocks = append(blocks, block)
	}

	return blocks
}

// =============================================================================

// countersign builds, stores and returns the mate for a proposal addressed to
// us. A proposal we already countersigned gets the stored mate back.
func (s *State) countersign(proposal database.Block) ([]wire.Envelope, error) {
	mate, err := s.db.GetLinked(proposal)
	switch {
	case err == nil:
		s.evHandler("state: countersign: %s already countersigned, sending %s again", proposal, mate)
		return []wire.Envelope{{Peer: proposal.PublicKey, Message: wire.HalfBlock{Block: mate}}}, nil

	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	linked, err := database.CreateLinked(s.db, s.keyPair.PublicKey, proposal)
	if err != nil {
		return nil, fmt.Errorf("create linked block: %w", err)
	}

	if linked, err = linked.Sign(s.keyPair.Private); err != nil {
		return nil, err
	}

	if _, err := s.db.Add(linked); err != nil {
		return nil, fmt.Errorf("add linked block: %w", err)
	}

	s.evHandler("state: countersign: sending %s", linked)

	return []wire.Envelope{{Peer: proposal.PublicKey, Message: wire.HalfBlock{Block: linked}}}, nil
}

// confirm clears the pending half-block the countersignature answers.
func (s *State) confirm(linked database.Block) {
	pending, exists := s.pending[linked.PublicKey]
	if !exists || pending.SequenceNumber != linked.LinkSequenceNumber {
		return
	}

	delete(s.pending, linked.PublicKey)
	s.evHandler("state: confirm: %s countersigned by %s", pending, linked)
}
