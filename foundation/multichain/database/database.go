// Package database handles all the lower level support for maintaining the
// per public key chains: the block codec, the validation rules, the factory
// that derives the next block, and the query API over a storage backend.
package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// SchemaVersion is the storage layout version this code writes.
//
//	1: blocks with the four indexes.
//	2: adds the fraud evidence log.
const SchemaVersion = 2

// Set of errors returned by the database API.
var (
	ErrNotFound = errors.New("not found")
	ErrReadOnly = errors.New("store schema is newer than this code, store is read only")
)

// =============================================================================

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting blocks. Write must be atomic with
// the index updates and idempotent on the identity hash.
type Storage interface {
	Write(blockData BlockData) (bool, error)
	GetByHash(hash signature.Hash) (BlockData, error)
	Get(publicKey signature.PublicKey, seq uint32) (BlockData, error)
	GetLatest(publicKey signature.PublicKey) (BlockData, error)
	GetBefore(publicKey signature.PublicKey, seq uint32) (BlockData, error)
	GetAfter(publicKey signature.PublicKey, seq uint32) (BlockData, error)
	GetSince(publicKey signature.PublicKey, seq uint32, limit int) ([]BlockData, error)
	GetByLink(linkPublicKey signature.PublicKey, linkSeq uint32) ([]BlockData, error)
	Interactions(publicKey signature.PublicKey) ([]Interaction, error)
	WriteFraud(fraud Fraud) error
	Frauds(publicKey signature.PublicKey) ([]Fraud, error)
	ReadOnly() bool
	Close() error
}

// Reader is the read side of the database used by the validator and the
// block factory.
type Reader interface {
	Get(publicKey signature.PublicKey, seq uint32) (Block, error)
	GetLatest(publicKey signature.PublicKey) (Block, error)
	GetLinked(block Block) (Block, error)
	GetLinksTo(publicKey signature.PublicKey, seq uint32) ([]Block, error)
	GetBlockBefore(block Block) (Block, error)
	GetBlockAfter(block Block) (Block, error)
	Frauds(publicKey signature.PublicKey) ([]Fraud, error)
}

// Interaction is the aggregate of the blocks one author holds with one
// counterparty.
type Interaction struct {
	LinkPublicKey signature.PublicKey
	Up            uint64
	Down          uint64
}

// =============================================================================

// SchemaAction is what a backend must do with the schema version it found.
type SchemaAction int

// Set of schema actions.
const (
	SchemaCreate SchemaAction = iota
	SchemaUse
	SchemaUpgrade
	SchemaReadOnly
)

// DecideSchema maps the stored schema version to the open action.
func DecideSchema(stored int) SchemaAction {
	switch {
	case stored == 0:
		return SchemaCreate
	case stored == SchemaVersion:
		return SchemaUse
	case stored < SchemaVersion:
		return SchemaUpgrade
	default:
		return SchemaReadOnly
	}
}

// =============================================================================

// Database manages the chains of every public key this node knows about.
// It is the only way the rest of the system touches persistent state.
type Database struct {
	storage Storage
}

// New constructs a database over the specified storage backend.
func New(storage Storage) *Database {
	return &Database{
		storage: storage,
	}
}

// Close closes the open storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Add inserts the block. The caller is responsible for running the validator
// first. It reports false when a block with the same identity hash exists.
func (db *Database) Add(block Block) (bool, error) {
	if db.storage.ReadOnly() {
		return false, ErrReadOnly
	}

	added, err := db.storage.Write(NewBlockData(block))
	if err != nil {
		return false, fmt.Errorf("writing block %s: %w", block, err)
	}

	return added, nil
}

// Contains reports whether a block with the identity hash is stored.
func (db *Database) Contains(hash signature.Hash) (bool, error) {
	_, err := db.storage.GetByHash(hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetByHash returns the block with the identity hash.
func (db *Database) GetByHash(hash signature.Hash) (Block, error) {
	return toBlock(db.storage.GetByHash(hash))
}

// Get returns the block the author stored at the sequence number.
func (db *Database) Get(publicKey signature.PublicKey, seq uint32) (Block, error) {
	return toBlock(db.storage.Get(publicKey, seq))
}

// GetLatest returns the block with the highest sequence number for the key.
func (db *Database) GetLatest(publicKey signature.PublicKey) (Block, error) {
	return toBlock(db.storage.GetLatest(publicKey))
}

// GetLatestData returns the latest block with its storage metadata.
func (db *Database) GetLatestData(publicKey signature.PublicKey) (BlockData, error) {
	return db.storage.GetLatest(publicKey)
}

// GetBlockBefore returns the nearest block on the same chain with a lower
// sequence number. It is not necessarily contiguous.
func (db *Database) GetBlockBefore(block Block) (Block, error) {
	return toBlock(db.storage.GetBefore(block.PublicKey, block.SequenceNumber))
}

// GetBlockAfter returns the nearest block on the same chain with a higher
// sequence number. It is not necessarily contiguous.
func (db *Database) GetBlockAfter(block Block) (Block, error) {
	return toBlock(db.storage.GetAfter(block.PublicKey, block.SequenceNumber))
}

// GetBlocksSince returns up to limit blocks of the chain with a sequence
// number of at least seq in ascending order.
func (db *Database) GetBlocksSince(publicKey signature.PublicKey, seq uint32, limit int) ([]Block, error) {
	if limit <= 0 {
		return nil, nil
	}

	data, err := db.storage.GetSince(publicKey, seq, limit)
	if err != nil {
		return nil, err
	}

	return toBlocks(data), nil
}

// GetLinksTo returns every stored block that names the specified author and
// sequence number as its mate.
func (db *Database) GetLinksTo(publicKey signature.PublicKey, seq uint32) ([]Block, error) {
	data, err := db.storage.GetByLink(publicKey, seq)
	if err != nil {
		return nil, err
	}

	return toBlocks(data), nil
}

// GetLinked returns the mate of the block on the counterparty's chain. The
// mate is only returned when both directions agree.
func (db *Database) GetLinked(block Block) (Block, error) {
	if block.IsLinked() {
		candidate, err := db.Get(block.LinkPublicKey, block.LinkSequenceNumber)
		switch {
		case err == nil:
			if block.Mates(candidate) {
				return candidate, nil
			}

		case !errors.Is(err, ErrNotFound):
			return Block{}, err
		}
	}

	candidates, err := db.GetLinksTo(block.PublicKey, block.SequenceNumber)
	if err != nil {
		return Block{}, err
	}

	for _, candidate := range candidates {
		if block.Mates(candidate) {
			return candidate, nil
		}
	}

	return Block{}, ErrNotFound
}

// GetNumUniqueInteractors returns the number of distinct counterparties the
// author uploaded to (helped) and downloaded from (helped by).
func (db *Database) GetNumUniqueInteractors(publicKey signature.PublicKey) (helped int, helpedBy int, err error) {
	interactions, err := db.storage.Interactions(publicKey)
	if err != nil {
		return 0, 0, err
	}

	for _, in := range interactions {
		if in.Up > 0 {
			helped++
		}
		if in.Down > 0 {
			helpedBy++
		}
	}

	return helped, helpedBy, nil
}

// =============================================================================

// FraudKind names the kind of misbehavior captured by the evidence.
type FraudKind string

// Set of fraud kinds.
const (
	FraudDoubleSign        FraudKind = "double_sign"
	FraudDoubleCountersign FraudKind = "double_countersign"
)

// Fraud is local evidence that an author signed two conflicting blocks.
type Fraud struct {
	Kind      FraudKind           `json:"kind"`
	PublicKey signature.PublicKey `json:"public_key"`
	Existing  Block               `json:"existing"`
	Offending Block               `json:"offending"`
	Time      time.Time           `json:"time"`
}

// AddFraud records the evidence. Recording the same evidence twice is a no-op.
func (db *Database) AddFraud(fraud Fraud) error {
	if db.storage.ReadOnly() {
		return ErrReadOnly
	}

	if fraud.Time.IsZero() {
		fraud.Time = time.Now().UTC()
	}

	return db.storage.WriteFraud(fraud)
}

// Frauds returns the evidence collected against the author.
func (db *Database) Frauds(publicKey signature.PublicKey) ([]Fraud, error) {
	return db.storage.Frauds(publicKey)
}

// =============================================================================

func toBlock(data BlockData, err error) (Block, error) {
	if err != nil {
		return Block{}, err
	}

	return data.Block, nil
}

func toBlocks(data []BlockData) []Block {
	blocks := make([]Block, len(data))
	for i, bd := range data {
		blocks[i] = bd.Block
	}

	return blocks
}
