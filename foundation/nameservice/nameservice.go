// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the node owners.
package nameservice

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const keyExt = ".ecdsa"

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	root      string
	crypto    signature.Provider
	mu        sync.RWMutex
	addresses map[database.Address]string
	keys      map[string]*ecdsa.PrivateKey
}

// New constructs a name service with the keys found in the root folder.
func New(root string) (*NameService, error) {
	ns := NameService{
		root:      root,
		crypto:    signature.New(),
		addresses: make(map[database.Address]string),
		keys:      make(map[string]*ecdsa.PrivateKey),
	}

	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return &ns, nil
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != keyExt {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		ns.add(strings.TrimSuffix(path.Base(fileName), keyExt), privateKey)

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// PrivateKey returns the key registered under the name. A key is generated
// and saved into the root folder when the name is unknown.
func (ns *NameService) PrivateKey(name string) (*ecdsa.PrivateKey, error) {
	ns.mu.RLock()
	privateKey, exists := ns.keys[name]
	ns.mu.RUnlock()

	if exists {
		return privateKey, nil
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := os.MkdirAll(ns.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", ns.root, err)
	}

	fileName := filepath.Join(ns.root, name+keyExt)
	if err := crypto.SaveECDSA(fileName, privateKey); err != nil {
		return nil, fmt.Errorf("saving %s: %w", fileName, err)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.add(name, privateKey)

	return privateKey, nil
}

// Address returns the address registered under the name.
func (ns *NameService) Address(name string) (database.Address, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	privateKey, exists := ns.keys[name]
	if !exists {
		return "", false
	}

	return database.PublicKeyToAddress(ns.crypto, &privateKey.PublicKey), true
}

// Lookup returns the name for the specified address.
func (ns *NameService) Lookup(address database.Address) string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	name, exists := ns.addresses[address]
	if !exists {
		return string(address)
	}
	return name
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[database.Address]string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	cpy := make(map[database.Address]string, len(ns.addresses))
	for address, name := range ns.addresses {
		cpy[address] = name
	}
	return cpy
}

func (ns *NameService) add(name string, privateKey *ecdsa.PrivateKey) {
	ns.keys[name] = privateKey
	ns.addresses[database.PublicKeyToAddress(ns.crypto, &privateKey.PublicKey)] = name
}
