package state

import (
	"errors"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
)

// crawlSession tracks the crawl we asked a peer for.
type crawlSession struct {
	sequence uint32
	received int
	started  time.Time
}

func (cs crawlSession) active(now time.Time) bool {
	return now.Sub(cs.started) < crawlWindow
}

// RequestCrawl asks the peer for its chain starting at the sequence number.
// Zero starts at the latest block we hold of that peer.
func (s *State) RequestCrawl(publicKey signature.PublicKey, seq uint32) error {
	if publicKey == s.keyPair.PublicKey {
		return ErrSelfInteraction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == database.UnknownSequence {
		latest, err := s.latestSequence(publicKey)
		if err != nil {
			return err
		}
		seq = latest
	}

	s.crawls[publicKey] = crawlSession{
		sequence: seq,
		started:  time.Now(),
	}

	s.evHandler("state: RequestCrawl: crawling %s from %d", publicKey.Mid(), seq)
	if err := s.send(wire.Envelope{Peer: publicKey, Message: wire.Crawl{Sequence: seq}}); err != nil {
		delete(s.crawls, publicKey)
		return err
	}

	return nil
}

// ReceivedCrawlRequest answers a crawl with up to MaxCrawlBatch blocks of our
// chain, paired with their mates when known. RESUME follows when more than
// one block was sent.
func (s *State) ReceivedCrawlRequest(from signature.PublicKey, seq uint32) ([]wire.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == database.UnknownSequence {
		latest, err := s.latestSequence(from)
		if err != nil {
			return nil, err
		}
		seq = latest
	}

	blocks, err := s.db.GetBlocksSince(s.keyPair.PublicKey, seq, MaxCrawlBatch)
	if err != nil {
		return nil, err
	}

	out := make([]wire.Envelope, 0, len(blocks)+1)
	for _, block := range blocks {
		mate, err := s.db.GetLinked(block)
		switch {
		case err == nil:
			out = append(out, wire.Envelope{Peer: from, Message: wire.FullBlock{Block: block, Mate: mate}})

		case errors.Is(err, database.ErrNotFound):
			out = append(out, wire.Envelope{Peer: from, Message: wire.HalfBlock{Block: block}})

		default:
			return nil, err
		}
	}

	if len(blocks) > 1 {
		out = append(out, wire.Envelope{Peer: from, Message: wire.Resume{}})
	}

	s.evHandler("state: ReceivedCrawlRequest: %s from %d: sending %d blocks", from.Mid(), seq, len(blocks))

	return out, nil
}

// ReceivedCrawlResume continues the crawl of the peer from the latest block
// we now hold. The crawl stops when the last batch moved nothing forward.
func (s *State) ReceivedCrawlResume(from signature.PublicKey) ([]wire.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, exists := s.crawls[from]
	if !exists || !cs.active(time.Now()) {
		delete(s.crawls, from)
		s.evHandler("state: ReceivedCrawlResume: WARNING: unexpected RESUME from %s, dropped", from.Mid())
		return nil, nil
	}

	seq, err := s.latestSequence(from)
	if err != nil {
		return nil, err
	}

	if seq <= cs.sequence {
		delete(s.crawls, from)
		s.evHandler("state: ReceivedCrawlResume: crawl of %s made no progress at %d, stopped", from.Mid(), seq)
		return nil, nil
	}

	s.crawls[from] = crawlSession{
		sequence: seq,
		started:  time.Now(),
	}

	s.evHandler("state: ReceivedCrawlResume: crawling %s from %d", from.Mid(), seq)

	return []wire.Envelope{{Peer: from, Message: wire.Crawl{Sequence: seq}}}, nil
}

// =============================================================================

// countCrawlUnit counts a block message against the crawl of the sender. It
// reports false once the sender went past the batch cap.
func (s *State) countCrawlUnit(from signature.PublicKey) bool {
	cs, exists := s.crawls[from]
	if !exists {
		return true
	}

	if !cs.active(time.Now()) {
		delete(s.crawls, from)
		return true
	}

	cs.received++
	s.crawls[from] = cs

	if cs.received > MaxCrawlBatch {
		s.evHandler("state: crawl: WARNING: %s sent more than %d blocks, dropped", from.Mid(), MaxCrawlBatch)
		return false
	}

	return true
}

// latestSequence returns the highest sequence number we hold for the key or
// zero when we hold nothing.
func (s *State) latestSequence(publicKey signature.PublicKey) (uint32, error) {
	latest, err := s.db.GetLatest(publicKey)
	switch {
	case err == nil:
		return latest.SequenceNumber, nil
	case errors.Is(err, database.ErrNotFound):
		return database.UnknownSequence, nil
	default:
		return 0, err
	}
}
