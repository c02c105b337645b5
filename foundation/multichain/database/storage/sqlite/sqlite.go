// Package sqlite implements the storage of the chains in a SQLite file using
// the pure Go modernc driver. The indexes are plain SQL indexes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS option (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS blocks (
	hash                 BLOB    NOT NULL,
	public_key           BLOB    NOT NULL,
	sequence_number      INTEGER NOT NULL,
	link_public_key      BLOB    NOT NULL,
	link_sequence_number INTEGER NOT NULL,
	in_chain             INTEGER NOT NULL,
	block                BLOB    NOT NULL,
	insert_time          INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_blocks_hash ON blocks(hash);
CREATE INDEX IF NOT EXISTS idx_blocks_chain ON blocks(public_key, sequence_number);
CREATE INDEX IF NOT EXISTS idx_blocks_pair ON blocks(public_key, link_public_key);
CREATE INDEX IF NOT EXISTS idx_blocks_link ON blocks(link_public_key, link_sequence_number);
`

const schemaV2 = `
CREATE TABLE IF NOT EXISTS frauds (
	public_key     BLOB    NOT NULL,
	kind           TEXT    NOT NULL,
	offending_hash BLOB    NOT NULL,
	existing       BLOB    NOT NULL,
	offending      BLOB    NOT NULL,
	time           INTEGER NOT NULL,
	PRIMARY KEY (public_key, kind, offending_hash)
);
`

const blockColumns = "hash, block, insert_time"

// SQLite represents the storage implementation backed by a SQLite file. This
// implements the database.Storage interface.
type SQLite struct {
	db       *sql.DB
	version  int
	readOnly bool
}

// New opens or creates the store at the path and brings the schema to the
// version this code writes. A store written by newer code is opened for
// reads only.
func New(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite file: %w", err)
	}

	// The store has a single writer. One connection keeps SQLite from
	// returning busy errors between our own statements.
	db.SetMaxOpenConns(1)

	s := SQLite{
		db: db,
	}

	if err := s.openSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return &s, nil
}

// Version returns the schema version found in the file after open.
func (s *SQLite) Version() int {
	return s.version
}

// ReadOnly reports whether the schema is newer than this code.
func (s *SQLite) ReadOnly() bool {
	return s.readOnly
}

// Close releases the file.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) openSchema() error {
	stored, err := s.storedVersion()
	if err != nil {
		return err
	}

	var steps []string
	switch database.DecideSchema(stored) {
	case database.SchemaCreate:
		steps = []string{schemaV1, schemaV2}

	case database.SchemaUpgrade:
		if stored < 2 {
			steps = append(steps, schemaV2)
		}

	case database.SchemaReadOnly:
		s.version = stored
		s.readOnly = true
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, step := range steps {
		if _, err := tx.Exec(step); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	const q = `INSERT INTO option (key, value) VALUES ('database_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(q, strconv.Itoa(database.SchemaVersion)); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.version = database.SchemaVersion
	return nil
}

func (s *SQLite) storedVersion() (int, error) {
	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'option'`).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, err
	}

	var value string
	err = s.db.QueryRow(`SELECT value FROM option WHERE key = 'database_version'`).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, err
	}

	return strconv.Atoi(value)
}

// =============================================================================

// Write stores the block in one transaction. The first block stored at a
// sequence number is the one flagged as part of the chain.
func (s *SQLite) Write(blockData database.BlockData) (bool, error) {
	if s.readOnly {
		return false, database.ErrReadOnly
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM blocks WHERE hash = ?`, blockData.Hash[:]).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	block := blockData.Block

	const qChain = `SELECT COUNT(*) FROM blocks WHERE public_key = ? AND sequence_number = ? AND in_chain = 1`
	if err := tx.QueryRow(qChain, block.PublicKey[:], block.SequenceNumber).Scan(&n); err != nil {
		return false, err
	}
	inChain := 0
	if n == 0 {
		inChain = 1
	}

	const qInsert = `INSERT INTO blocks
		(hash, public_key, sequence_number, link_public_key, link_sequence_number, in_chain, block, insert_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.Exec(qInsert,
		blockData.Hash[:],
		block.PublicKey[:],
		block.SequenceNumber,
		block.LinkPublicKey[:],
		block.LinkSequenceNumber,
		inChain,
		block.Pack(),
		blockData.InsertTime.UnixNano(),
	)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// GetByHash returns the block with the identity hash.
func (s *SQLite) GetByHash(hash signature.Hash) (database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks WHERE hash = ?`
	return s.queryOne(q, hash[:])
}

// Get returns the block at the sequence number of the chain.
func (s *SQLite) Get(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND sequence_number = ? AND in_chain = 1`
	return s.queryOne(q, publicKey[:], seq)
}

// GetLatest returns the block with the highest sequence number.
func (s *SQLite) GetLatest(publicKey signature.PublicKey) (database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND in_chain = 1
		ORDER BY sequence_number DESC LIMIT 1`
	return s.queryOne(q, publicKey[:])
}

// GetBefore returns the nearest block with a lower sequence number.
func (s *SQLite) GetBefore(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND sequence_number < ? AND in_chain = 1
		ORDER BY sequence_number DESC LIMIT 1`
	return s.queryOne(q, publicKey[:], seq)
}

// GetAfter returns the nearest block with a higher sequence number.
func (s *SQLite) GetAfter(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND sequence_number > ? AND in_chain = 1
		ORDER BY sequence_number ASC LIMIT 1`
	return s.queryOne(q, publicKey[:], seq)
}

// GetSince returns up to limit blocks starting at the sequence number.
func (s *SQLite) GetSince(publicKey signature.PublicKey, seq uint32, limit int) ([]database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND sequence_number >= ? AND in_chain = 1
		ORDER BY sequence_number ASC LIMIT ?`
	return s.queryMany(q, publicKey[:], seq, limit)
}

// GetByLink returns the blocks naming the author and sequence as their mate,
// in insertion order.
func (s *SQLite) GetByLink(linkPublicKey signature.PublicKey, linkSeq uint32) ([]database.BlockData, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE link_public_key = ? AND link_sequence_number = ?
		ORDER BY rowid ASC`
	return s.queryMany(q, linkPublicKey[:], linkSeq)
}

// Interactions returns the per counterparty aggregates of the author's chain.
// The amounts are unsigned 64 bit values so they are summed here instead of
// by SQLite's signed SUM.
func (s *SQLite) Interactions(publicKey signature.PublicKey) ([]database.Interaction, error) {
	const q = `SELECT ` + blockColumns + ` FROM blocks
		WHERE public_key = ? AND in_chain = 1
		ORDER BY link_public_key`
	data, err := s.queryMany(q, publicKey[:])
	if err != nil {
		return nil, err
	}

	sums := make(map[signature.PublicKey]database.Interaction)
	for _, bd := range data {
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
		return string(out[i].LinkPublicKey[:]) < string(out[j].LinkPublicKey[:])
	})

	return out, nil
}

// WriteFraud records the evidence unless the same evidence exists.
func (s *SQLite) WriteFraud(fraud database.Fraud) error {
	if s.readOnly {
		return database.ErrReadOnly
	}

	hash := fraud.Offending.Hash()

	const q = `INSERT OR IGNORE INTO frauds
		(public_key, kind, offending_hash, existing, offending, time)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(q,
		fraud.PublicKey[:],
		string(fraud.Kind),
		hash[:],
		fraud.Existing.Pack(),
		fraud.Offending.Pack(),
		fraud.Time.UnixNano(),
	)

	return err
}

// Frauds returns the evidence collected against the author.
func (s *SQLite) Frauds(publicKey signature.PublicKey) ([]database.Fraud, error) {
	const q = `SELECT kind, existing, offending, time FROM frauds
		WHERE public_key = ? ORDER BY time ASC`
	rows, err := s.db.Query(q, publicKey[:])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.Fraud
	for rows.Next() {
		var kind string
		var existing, offending []byte
		var nanos int64
		if err := rows.Scan(&kind, &existing, &offending, &nanos); err != nil {
			return nil, err
		}

		fraud := database.Fraud{
			Kind:      database.FraudKind(kind),
			PublicKey: publicKey,
			Time:      time.Unix(0, nanos).UTC(),
		}
		if fraud.Existing, err = database.Unpack(existing); err != nil {
			return nil, err
		}
		if fraud.Offending, err = database.Unpack(offending); err != nil {
			return nil, err
		}

		out = append(out, fraud)
	}

	return out, rows.Err()
}

// =============================================================================

func (s *SQLite) queryOne(q string, args ...any) (database.BlockData, error) {
	data, err := s.queryMany(q, args...)
	if err != nil {
		return database.BlockData{}, err
	}

	if len(data) == 0 {
		return database.BlockData{}, database.ErrNotFound
	}

	return data[0], nil
}

func (s *SQLite) queryMany(q string, args ...any) ([]database.BlockData, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.BlockData
	for rows.Next() {
		var hash, packed []byte
		var nanos int64
		if err := rows.Scan(&hash, &packed, &nanos); err != nil {
			return nil, err
		}

		block, err := database.Unpack(packed)
		if err != nil {
			return nil, err
		}

		bd := database.BlockData{
			Block:      block,
			InsertTime: time.Unix(0, nanos).UTC(),
		}
		copy(bd.Hash[:], hash)

		out = append(out, bd)
	}

	return out, rows.Err()
}
