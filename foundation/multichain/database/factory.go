package database

import (
	"errors"
	"fmt"
	"math"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// ErrTotalOverflow is returned when the cumulative totals can't hold the new
// interaction.
var ErrTotalOverflow = errors.New("cumulative total overflows")

// CreateNext builds the next unsigned block for the author's chain. The link
// sequence number is left unknown: this is the proposal half of a pair.
func CreateNext(db Reader, publicKey signature.PublicKey, linkPublicKey signature.PublicKey, up uint64, down uint64) (Block, error) {
	block := Block{
		Up:            up,
		Down:          down,
		PublicKey:     publicKey,
		LinkPublicKey: linkPublicKey,
	}

	if err := extend(db, &block); err != nil {
		return Block{}, err
	}

	return block, nil
}

// CreateLinked builds the unsigned countersignature for the mate. The amounts
// are mirrored: what the mate's author sent is what we received.
func CreateLinked(db Reader, publicKey signature.PublicKey, mate Block) (Block, error) {
	block := Block{
		Up:                 mate.Down,
		Down:               mate.Up,
		PublicKey:          publicKey,
		LinkPublicKey:      mate.PublicKey,
		LinkSequenceNumber: mate.SequenceNumber,
	}

	if err := extend(db, &block); err != nil {
		return Block{}, err
	}

	return block, nil
}

// extend places the block after the latest block of the author's chain.
func extend(db Reader, block *Block) error {
	latest, err := db.GetLatest(block.PublicKey)
	switch {
	case errors.Is(err, ErrNotFound):
		block.SequenceNumber = GenesisSequence
		block.PreviousHash = GenesisHash
		block.TotalUp = block.Up
		block.TotalDown = block.Down
		return nil

	case err != nil:
		return fmt.Errorf("reading latest block: %w", err)
	}

	if latest.SequenceNumber == math.MaxUint32 {
		return fmt.Errorf("chain %s is full", block.PublicKey.Mid())
	}

	if exceeds(latest.TotalUp, block.Up, math.MaxUint64) || exceeds(latest.TotalDown, block.Down, math.MaxUint64) {
		return ErrTotalOverflow
	}

	block.SequenceNumber = latest.SequenceNumber + 1
	block.PreviousHash = latest.Hash()
	block.TotalUp = latest.TotalUp + block.Up
	block.TotalDown = latest.TotalDown + block.Down

	return nil
}
