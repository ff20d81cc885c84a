package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// Badger represents the serialization implementation for reading and
// storing blocks in a badger key/value store. Blocks are keyed by their
// big endian encoded number so they iterate in chain order. This
// implements the database.Serializer interface.
type Badger struct {
	db *badger.DB
}

// NewBadger constructs a Badger value for use.
func NewBadger(dbPath string) (*Badger, error) {
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Badger{db: db}, nil
}

// Close releases the underlying badger database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Write stores the specified block under its block number.
func (b *Badger) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(blockData.Header.Number), data)
	})
}

// GetBlock retrieves the specified block by number.
func (b *Badger) GetBlock(num uint64) (database.BlockData, error) {
	var blockData database.BlockData

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(num))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &blockData)
		})
	})
	if err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (b *Badger) ForEach() database.Iterator {
	return &BadgerIterator{badger: b}
}

// Reset drops all blocks so a replacement chain can be written from
// genesis.
func (b *Badger) Reset() error {
	return b.db.DropAll()
}

// blockKey encodes the block number so keys sort in chain order.
func blockKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, num)
	return key
}

// =============================================================================

// BadgerIterator represents the iteration implementation for walking
// through and reading blocks in the badger store. This implements the
// database.Iterator interface.
type BadgerIterator struct {
	badger  *Badger // Access to the badger storage API.
	current uint64  // Current block number being iterated over.
	started bool    // The genesis block has been returned.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the store.
func (bi *BadgerIterator) Next() (database.BlockData, error) {
	if bi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	if bi.started {
		bi.current++
	}
	bi.started = true

	blockData, err := bi.badger.GetBlock(bi.current)
	if errors.Is(err, badger.ErrKeyNotFound) {
		bi.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (bi *BadgerIterator) Done() bool {
	return bi.eoc
}
