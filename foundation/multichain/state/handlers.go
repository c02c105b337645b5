package state

import (
	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// ReceivedHalfBlock handles a single block from a peer. It is either a
// proposal, a countersignature of one of ours, or a crawl response unit.
// Proposals addressed to us are countersigned.
func (s *State) ReceivedHalfBlock(from signature.PublicKey, block database.Block) ([]wire.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	our := s.keyPair.PublicKey

	// Proposals addressed to us belong to the signing protocol and are not
	// counted against a crawl of the sender.
	proposal := block.LinkPublicKey == our && !block.IsLinked()
	if !proposal && !s.countCrawlUnit(from) {
		return nil, nil
	}

	accepted, err := s.accept(from, block)
	if err != nil || !accepted {
		return nil, err
	}

	if block.LinkPublicKey != our || block.PublicKey == our {
		return nil, nil
	}

	if block.IsLinked() {
		s.confirm(block)
		return nil, nil
	}

	return s.countersign(block)
}

// ReceivedFullBlock handles a linked pair sent in response to a crawl. Both
// blocks are stored when valid, neither is countersigned.
func (s *State) ReceivedFullBlock(from signature.PublicKey, block database.Block, mate database.Block) ([]wire.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !block.Mates(mate) {
		s.evHandler("state: ReceivedFullBlock: WARNING: %s and %s from %s are not mates, dropped", block, mate, from.Mid())
		return nil, nil
	}

	if !s.countCrawlUnit(from) {
		return nil, nil
	}

	for _, b := range []database.Block{block, mate} {
		accepted, err := s.accept(from, b)
		if err != nil {
			return nil, err
		}

		if accepted && b.IsLinked() && b.LinkPublicKey == s.keyPair.PublicKey {
			s.confirm(b)
		}
	}

	return nil, nil
}

// =============================================================================

// accept validates the block and stores it unless it is invalid. Fraud is
// recorded before the block is dropped.
func (s *State) accept(from signature.PublicKey, block database.Block) (bool, error) {
	result, err := database.Validate(block, s.db)
	if err != nil {
		return false, err
	}

	if result.Verdict == database.Invalid {
		s.evHandler("state: accept: WARNING: %s from %s dropped: %s", block, from.Mid(), result)

		if kind, ok := result.Fraud(); ok {
			// A stored block failing here is evidence already on record.
			known, err := s.db.Contains(block.Hash())
			if err != nil {
				return false, err
			}

			if !known {
				if err := s.recordFraud(kind, block); err != nil {
					return false, err
				}
			}
		}

		return false, nil
	}

	added, err := s.db.Add(block)
	if err != nil {
		return false, err
	}

	if added {
		s.evHandler("state: accept: %s from %s stored: %s", block, from.Mid(), result.Verdict)
	}

	return true, nil
}

// recordFraud keeps the evidence of the conflicting blocks.
func (s *State) recordFraud(kind database.FraudKind, offending database.Block) error {
	var existing database.Block

	switch kind {
	case database.FraudDoubleSign:
		block, err := s.db.Get(offending.PublicKey, offending.SequenceNumber)
		if err != nil {
			return err
		}
		existing = block

	case database.FraudDoubleCountersign:
		links, err := s.db.GetLinksTo(offending.LinkPublicKey, offending.LinkSequenceNumber)
		if err != nil {
			return err
		}
		for _, link := range links {
			if link.PublicKey == offending.PublicKey && link.SequenceNumber != offending.SequenceNumber {
				existing = link
				break
			}
		}
	}

	fraud := database.Fraud{
		Kind:      kind,
		PublicKey: offending.PublicKey,
		Existing:  existing,
		Offending: offending,
	}

	if err := s.db.AddFraud(fraud); err != nil {
		return err
	}

	s.evHandler("state: fraud: %s by %s: existing %s offending %s", kind, offending.PublicKey.Mid(), existing, offending)

	return nil
}
