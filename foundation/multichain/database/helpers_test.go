package database_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/bolt"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/memory"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/sqlite"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// Deterministic keys for the peers used in the tests.
const (
	hexA = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	hexB = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	hexC = "aed31b6b5a341af8f1f0f0d6ab8ea1d6f2e0a4c2b1c3d4e5f60718293a4b5c6d"
)

// =============================================================================

type backend struct {
	name string
	open func(t *testing.T) database.Storage
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			open: func(t *testing.T) database.Storage {
				strg, err := memory.New()
				if err != nil {
					t.Fatalf("Should be able to open memory storage: %s", err)
				}
				return strg
			},
		},
		{
			name: "bolt",
			open: func(t *testing.T) database.Storage {
				strg, err := bolt.New(filepath.Join(t.TempDir(), "chain.db"))
				if err != nil {
					t.Fatalf("Should be able to open bolt storage: %s", err)
				}
				t.Cleanup(func() { strg.Close() })
				return strg
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) database.Storage {
				strg, err := sqlite.New(filepath.Join(t.TempDir(), "chain.sqlite"))
				if err != nil {
					t.Fatalf("Should be able to open sqlite storage: %s", err)
				}
				t.Cleanup(func() { strg.Close() })
				return strg
			},
		},
	}
}

func newMemoryDB(t *testing.T) *database.Database {
	strg, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to open memory storage: %s", err)
	}

	return database.New(strg)
}

func mustKey(t *testing.T, hexKey string) signature.KeyPair {
	kp, err := signature.HexToKeyPair(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load key: %s", err)
	}

	return kp
}

func mustSign(t *testing.T, block database.Block, kp signature.KeyPair) database.Block {
	signed, err := block.Sign(kp.Private)
	if err != nil {
		t.Fatalf("Should be able to sign block: %s", err)
	}

	return signed
}

func mustAdd(t *testing.T, db *database.Database, block database.Block) {
	if _, err := db.Add(block); err != nil {
		t.Fatalf("Should be able to add block %s: %s", block, err)
	}
}

// proposal creates, signs and stores the next proposal on the author's chain.
func proposal(t *testing.T, db *database.Database, author signature.KeyPair, link signature.KeyPair, up uint64, down uint64) database.Block {
	block, err := database.CreateNext(db, author.PublicKey, link.PublicKey, up, down)
	if err != nil {
		t.Fatalf("Should be able to create next block: %s", err)
	}

	block = mustSign(t, block, author)
	mustAdd(t, db, block)

	return block
}

// countersign creates, signs and stores the mate of the block.
func countersign(t *testing.T, db *database.Database, author signature.KeyPair, mate database.Block) database.Block {
	block, err := database.CreateLinked(db, author.PublicKey, mate)
	if err != nil {
		t.Fatalf("Should be able to create linked block: %s", err)
	}

	block = mustSign(t, block, author)
	mustAdd(t, db, block)

	return block
}

func hasReason(reasons []string, reason string) bool {
	for _, r := range reasons {
		if r == reason {
			return true
		}
	}
	return false
}
