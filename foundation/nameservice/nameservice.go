// Package nameservice reads a folder of node key files and creates a name
// service lookup for their public keys. The file name is the node's name.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/multichain/foundation/multichain/signature"
)

// keyExt is the extension of the key files in the folder.
const keyExt = ".ecdsa"

// NameService maintains a map of public keys for name lookup.
type NameService struct {
	names map[signature.PublicKey]string
}

// New constructs a name service with the key files found under root. A
// missing folder gives an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		names: make(map[signature.PublicKey]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			if fileName == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExt {
			return nil
		}

		kp, err := signature.LoadKeyPair(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		ns.names[kp.PublicKey] = strings.TrimSuffix(filepath.Base(fileName), keyExt)

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the public key, or its mid when unnamed.
func (ns *NameService) Lookup(publicKey signature.PublicKey) string {
	name, exists := ns.names[publicKey]
	if !exists {
		return publicKey.Mid()
	}
	return name
}

// Copy returns a copy of the map of names and public keys.
func (ns *NameService) Copy() map[signature.PublicKey]string {
	cpy := make(map[signature.PublicKey]string, len(ns.names))
	for publicKey, name := range ns.names {
		cpy[publicKey] = name
	}
	return cpy
}
