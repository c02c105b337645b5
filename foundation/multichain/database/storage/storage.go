// Package storage opens the chain store backends by driver name.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/multichain/foundation/multichain/database"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/bolt"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/memory"
	"github.com/ardanlabs/multichain/foundation/multichain/database/storage/sqlite"
)

// Set of supported drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open opens the store for the driver at the path, creating the folder of
// the path when needed. The memory driver ignores the path.
func Open(driver string, path string) (database.Storage, error) {
	switch driver {
	case DriverBolt, DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	switch driver {
	case DriverBolt:
		return bolt.New(path)
	case DriverSQLite:
		return sqlite.New(path)
	case DriverMemory:
		return memory.New()
	}

	return nil, fmt.Errorf("unknown db driver %q", driver)
}
