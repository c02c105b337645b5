// Package bolt implements the storage of the chains in a single bbolt file.
// Every index lives in its own bucket and is updated in the same transaction
// as the block itself.
package bolt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
var (
	bucketMeta         = []byte("meta")
	bucketBlocks       = []byte("blocks")       // hash -> insert time | packed block
	bucketChains       = []byte("chains")       // public key | seq -> hash
	bucketLinks        = []byte("links")        // link key | link seq | insert seq -> hash
	bucketInteractions = []byte("interactions") // public key | link key -> up | down
	bucketFrauds       = []byte("frauds")       // public key | kind | offending hash -> evidence
)

var keyVersion = []byte("version")

// Bolt represents the storage implementation backed by a bbolt file. This
// implements the database.Storage interface.
type Bolt struct {
	db       *bolt.DB
	version  int
	readOnly bool
}

// New opens or creates the store at the path and brings the schema to the
// version this code writes. A store written by newer code is opened for
// reads only.
func New(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file: %w", err)
	}

	b := Bolt{
		db: db,
	}

	if err := db.Update(b.openSchema); err != nil {
		db.Close()
		return nil, err
	}

	return &b, nil
}

// Version returns the schema version found in the file after open.
func (b *Bolt) Version() int {
	return b.version
}

// ReadOnly reports whether the schema is newer than this code.
func (b *Bolt) ReadOnly() bool {
	return b.readOnly
}

// Close releases the file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) openSchema(tx *bolt.Tx) error {
	meta, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}

	stored := 0
	if v := meta.Get(keyVersion); v != nil {
		if stored, err = strconv.Atoi(string(v)); err != nil {
			return fmt.Errorf("parsing schema version %q: %w", v, err)
		}
	}

	switch database.DecideSchema(stored) {
	case database.SchemaCreate:
		for _, name := range [][]byte{bucketBlocks, bucketChains, bucketLinks, bucketInteractions, bucketFrauds} {
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

	case database.SchemaUpgrade:
		if stored < 2 {
			if _, err := tx.CreateBucketIfNotExists(bucketFrauds); err != nil {
				return fmt.Errorf("upgrading to v2: %w", err)
			}
		}

	case database.SchemaReadOnly:
		b.version = stored
		b.readOnly = true
		return nil
	}

	b.version = database.SchemaVersion
	return meta.Put(keyVersion, []byte(strconv.Itoa(database.SchemaVersion)))
}

// =============================================================================

// Write stores the block and updates the indexes in one transaction. The
// first block stored at a sequence number keeps its place in the chain index.
func (b *Bolt) Write(blockData database.BlockData) (bool, error) {
	if b.readOnly {
		return false, database.ErrReadOnly
	}

	var added bool
	f := func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		if blocks.Get(blockData.Hash[:]) != nil {
			return nil
		}

		block := blockData.Block

		if err := blocks.Put(blockData.Hash[:], encodeBlock(blockData)); err != nil {
			return err
		}

		chains := tx.Bucket(bucketChains)
		ck := chainKey(block.PublicKey, block.SequenceNumber)
		if chains.Get(ck) == nil {
			if err := chains.Put(ck, blockData.Hash[:]); err != nil {
				return err
			}

			if err := addInteraction(tx.Bucket(bucketInteractions), block); err != nil {
				return err
			}
		}

		links := tx.Bucket(bucketLinks)
		n, err := links.NextSequence()
		if err != nil {
			return err
		}
		lk := make([]byte, 0, signature.PublicKeyLength+12)
		lk = append(lk, chainKey(block.LinkPublicKey, block.LinkSequenceNumber)...)
		lk = binary.BigEndian.AppendUint64(lk, n)
		if err := links.Put(lk, blockData.Hash[:]); err != nil {
			return err
		}

		added = true
		return nil
	}

	if err := b.db.Update(f); err != nil {
		return false, err
	}

	return added, nil
}

// GetByHash returns the block with the identity hash.
func (b *Bolt) GetByHash(hash signature.Hash) (database.BlockData, error) {
	var bd database.BlockData
	f := func(tx *bolt.Tx) error {
		var err error
		bd, err = getByHash(tx, hash[:])
		return err
	}

	if err := b.db.View(f); err != nil {
		return database.BlockData{}, err
	}

	return bd, nil
}

// Get returns the block at the sequence number of the chain.
func (b *Bolt) Get(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	var bd database.BlockData
	f := func(tx *bolt.Tx) error {
		hash := tx.Bucket(bucketChains).Get(chainKey(publicKey, seq))
		if hash == nil {
			return database.ErrNotFound
		}

		var err error
		bd, err = getByHash(tx, hash)
		return err
	}

	if err := b.db.View(f); err != nil {
		return database.BlockData{}, err
	}

	return bd, nil
}

// GetLatest returns the block with the highest sequence number.
func (b *Bolt) GetLatest(publicKey signature.PublicKey) (database.BlockData, error) {
	return b.seek(publicKey, func(c *bolt.Cursor) ([]byte, []byte) {
		key := chainKey(publicKey, math.MaxUint32)
		k, v := c.Seek(key)
		if k != nil && bytes.Equal(k, key) {
			return k, v
		}
		return prev(c, k)
	})
}

// GetBefore returns the nearest block with a lower sequence number.
func (b *Bolt) GetBefore(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	return b.seek(publicKey, func(c *bolt.Cursor) ([]byte, []byte) {
		k, _ := c.Seek(chainKey(publicKey, seq))
		return prev(c, k)
	})
}

// GetAfter returns the nearest block with a higher sequence number.
func (b *Bolt) GetAfter(publicKey signature.PublicKey, seq uint32) (database.BlockData, error) {
	return b.seek(publicKey, func(c *bolt.Cursor) ([]byte, []byte) {
		key := chainKey(publicKey, seq)
		k, v := c.Seek(key)
		if k != nil && bytes.Equal(k, key) {
			return c.Next()
		}
		return k, v
	})
}

// GetSince returns up to limit blocks starting at the sequence number.
func (b *Bolt) GetSince(publicKey signature.PublicKey, seq uint32, limit int) ([]database.BlockData, error) {
	var out []database.BlockData
	f := func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChains).Cursor()
		for k, v := c.Seek(chainKey(publicKey, seq)); k != nil && bytes.HasPrefix(k, publicKey[:]) && len(out) < limit; k, v = c.Next() {
			bd, err := getByHash(tx, v)
			if err != nil {
				return err
			}
			out = append(out, bd)
		}
		return nil
	}

	if err := b.db.View(f); err != nil {
		return nil, err
	}

	return out, nil
}

// GetByLink returns the blocks naming the author and sequence as their mate,
// in insertion order.
func (b *Bolt) GetByLink(linkPublicKey signature.PublicKey, linkSeq uint32) ([]database.BlockData, error) {
	prefix := chainKey(linkPublicKey, linkSeq)

	var out []database.BlockData
	f := func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLinks).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			bd, err := getByHash(tx, v)
			if err != nil {
				return err
			}
			out = append(out, bd)
		}
		return nil
	}

	if err := b.db.View(f); err != nil {
		return nil, err
	}

	return out, nil
}

// Interactions returns the per counterparty aggregates of the author's chain.
func (b *Bolt) Interactions(publicKey signature.PublicKey) ([]database.Interaction, error) {
	var out []database.Interaction
	f := func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketInteractions).Cursor()
		for k, v := c.Seek(publicKey[:]); k != nil && bytes.HasPrefix(k, publicKey[:]); k, v = c.Next() {
			var in database.Interaction
			copy(in.LinkPublicKey[:], k[signature.PublicKeyLength:])
			in.Up = binary.BigEndian.Uint64(v[0:8])
			in.Down = binary.BigEndian.Uint64(v[8:16])
			out = append(out, in)
		}
		return nil
	}

	if err := b.db.View(f); err != nil {
		return nil, err
	}

	return out, nil
}

// WriteFraud records the evidence unless the same evidence exists.
func (b *Bolt) WriteFraud(fraud database.Fraud) error {
	if b.readOnly {
		return database.ErrReadOnly
	}

	f := func(tx *bolt.Tx) error {
		frauds := tx.Bucket(bucketFrauds)

		key := fraudKey(fraud)
		if frauds.Get(key) != nil {
			return nil
		}

		value := make([]byte, 8, 8+2*database.PackedLength)
		binary.BigEndian.PutUint64(value, uint64(fraud.Time.UnixNano()))
		value = append(value, fraud.Existing.Pack()...)
		value = append(value, fraud.Offending.Pack()...)

		return frauds.Put(key, value)
	}

	return b.db.Update(f)
}

// Frauds returns the evidence collected against the author.
func (b *Bolt) Frauds(publicKey signature.PublicKey) ([]database.Fraud, error) {
	var out []database.Fraud
	f := func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketFrauds)
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.Seek(publicKey[:]); k != nil && bytes.HasPrefix(k, publicKey[:]); k, v = c.Next() {
			fraud, err := decodeFraud(k, v)
			if err != nil {
				return err
			}
			out = append(out, fraud)
		}
		return nil
	}

	if err := b.db.View(f); err != nil {
		return nil, err
	}

	return out, nil
}

// =============================================================================

func (b *Bolt) seek(publicKey signature.PublicKey, move func(c *bolt.Cursor) ([]byte, []byte)) (database.BlockData, error) {
	var bd database.BlockData
	f := func(tx *bolt.Tx) error {
		k, v := move(tx.Bucket(bucketChains).Cursor())
		if k == nil || !bytes.HasPrefix(k, publicKey[:]) {
			return database.ErrNotFound
		}

		var err error
		bd, err = getByHash(tx, v)
		return err
	}

	if err := b.db.View(f); err != nil {
		return database.BlockData{}, err
	}

	return bd, nil
}

// prev steps back from the position a Seek landed on.
func prev(c *bolt.Cursor, k []byte) ([]byte, []byte) {
	if k == nil {
		return c.Last()
	}
	return c.Prev()
}

func getByHash(tx *bolt.Tx, hash []byte) (database.BlockData, error) {
	v := tx.Bucket(bucketBlocks).Get(hash)
	if v == nil {
		return database.BlockData{}, database.ErrNotFound
	}

	return decodeBlock(hash, v)
}

func chainKey(publicKey signature.PublicKey, seq uint32) []byte {
	key := make([]byte, 0, signature.PublicKeyLength+4)
	key = append(key, publicKey[:]...)
	return binary.BigEndian.AppendUint32(key, seq)
}

func fraudKey(fraud database.Fraud) []byte {
	hash := fraud.Offending.Hash()

	key := make([]byte, 0, signature.PublicKeyLength+len(fraud.Kind)+1+signature.HashLength)
	key = append(key, fraud.PublicKey[:]...)
	key = append(key, fraud.Kind...)
	key = append(key, '|')
	return append(key, hash[:]...)
}

func encodeBlock(bd database.BlockData) []byte {
	value := make([]byte, 8, 8+database.PackedLength)
	binary.BigEndian.PutUint64(value, uint64(bd.InsertTime.UnixNano()))
	return append(value, bd.Block.Pack()...)
}

func decodeBlock(hash []byte, value []byte) (database.BlockData, error) {
	if len(value) != 8+database.PackedLength {
		return database.BlockData{}, fmt.Errorf("%w: stored block length %d", database.ErrDecode, len(value))
	}

	block, err := database.Unpack(value[8:])
	if err != nil {
		return database.BlockData{}, err
	}

	bd := database.BlockData{
		Block:      block,
		InsertTime: time.Unix(0, int64(binary.BigEndian.Uint64(value[:8]))).UTC(),
	}
	copy(bd.Hash[:], hash)

	return bd, nil
}

func decodeFraud(key []byte, value []byte) (database.Fraud, error) {
	if len(value) != 8+2*database.PackedLength {
		return database.Fraud{}, fmt.Errorf("%w: stored fraud length %d", database.ErrDecode, len(value))
	}

	existing, err := database.Unpack(value[8 : 8+database.PackedLength])
	if err != nil {
		return database.Fraud{}, err
	}

	offending, err := database.Unpack(value[8+database.PackedLength:])
	if err != nil {
		return database.Fraud{}, err
	}

	kind := key[signature.PublicKeyLength : len(key)-signature.HashLength-1]

	fraud := database.Fraud{
		Kind:      database.FraudKind(kind),
		Existing:  existing,
		Offending: offending,
		Time:      time.Unix(0, int64(binary.BigEndian.Uint64(value[:8]))).UTC(),
	}
	copy(fraud.PublicKey[:], key[:signature.PublicKeyLength])

	return fraud, nil
}

func addInteraction(bucket *bolt.Bucket, block database.Block) error {
	key := make([]byte, 0, 2*signature.PublicKeyLength)
	key = append(key, block.PublicKey[:]...)
	key = append(key, block.LinkPublicKey[:]...)

	var up, down uint64
	if v := bucket.Get(key); v != nil {
		up = binary.BigEndian.Uint64(v[0:8])
		down = binary.BigEndian.Uint64(v[8:16])
	}

	value := make([]byte, 16)
	binary.BigEndian.PutUint64(value[0:8], up+block.Up)
	binary.BigEndian.PutUint64(value[8:16], down+block.Down)

	return bucket.Put(key, value)
}
