package state

import (
	"errors"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// BlockSummary describes the latest block of a chain.
type BlockSummary struct {
	Hash               signature.Hash      `json:"hash"`
	SequenceNumber     uint32              `json:"sequence_number"`
	LinkPublicKey      signature.PublicKey `json:"link_public_key"`
	LinkSequenceNumber uint32              `json:"link_sequence_number"`
	Up                 uint64              `json:"up"`
	Down               uint64              `json:"down"`
	InsertTime         time.Time           `json:"insert_time"`
}

// Statistics is what the node knows about one chain.
type Statistics struct {
	PublicKey     signature.PublicKey `json:"public_key"`
	TotalBlocks   uint32              `json:"total_blocks"`
	TotalUp       uint64              `json:"total_up"`
	TotalDown     uint64              `json:"total_down"`
	PeersHelped   int                 `json:"peers_helped"`
	PeersHelpedBy int                 `json:"peers_helped_by"`
	Frauds        int                 `json:"frauds"`
	Latest        *BlockSummary       `json:"latest_block,omitempty"`
}

// GetStatistics returns the totals, the latest block and the interactor
// counts of the chain.
func (s *State) GetStatistics(publicKey signature.PublicKey) (Statistics, error) {
	stats := Statistics{
		PublicKey: publicKey,
	}

	latest, err := s.db.GetLatestData(publicKey)
	switch {
	case err == nil:
		block := latest.Block
		stats.TotalBlocks = block.SequenceNumber
		stats.TotalUp = block.TotalUp
		stats.TotalDown = block.TotalDown
		stats.Latest = &BlockSummary{
			Hash:               latest.Hash,
			SequenceNumber:     block.SequenceNumber,
			LinkPublicKey:      block.LinkPublicKey,
			LinkSequenceNumber: block.LinkSequenceNumber,
			Up:                 block.Up,
			Down:               block.Down,
			InsertTime:         latest.InsertTime,
		}

	case !errors.Is(err, database.ErrNotFound):
		return Statistics{}, err
	}

	if stats.PeersHelped, stats.PeersHelpedBy, err = s.db.GetNumUniqueInteractors(publicKey); err != nil {
		return Statistics{}, err
	}

	frauds, err := s.db.Frauds(publicKey)
	if err != nil {
		return Statistics{}, err
	}
	stats.Frauds = len(frauds)

	return stats, nil
}

// QueryBlocks returns up to limit blocks of the chain starting at the
// sequence number. The limit is capped at MaxCrawlBatch.
func (s *State) QueryBlocks(publicKey signature.PublicKey, from uint32, limit int) ([]database.Block, error) {
	if limit <= 0 || limit > MaxCrawlBatch {
		limit = MaxCrawlBatch
	}

	return s.db.GetBlocksSince(publicKey, from, limit)
}

// QueryFrauds returns the fraud evidence collected against the key.
func (s *State) QueryFrauds(publicKey signature.PublicKey) ([]database.Fraud, error) {
	return s.db.Frauds(publicKey)
}
