package storage

import (
	"errors"
	"sync"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// Memory represents the serialization implementation for keeping blocks
// in memory. Used by tests and ephemeral nodes. This implements the
// database.Serializer interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
}

// NewMemory constructs a Memory value for use.
func NewMemory() (*Memory, error) {
	return &Memory{}, nil
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Write appends the specified block to the in memory chain.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A rewrite of an existing height replaces it.
	if n := blockData.Header.Number; n < uint64(len(m.blocks)) {
		m.blocks[n] = blockData
		return nil
	}

	m.blocks = append(m.blocks, blockData)

	return nil
}

// GetBlock retrieves the specified block by number.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return database.BlockData{}, errors.New("block not found")
	}

	return m.blocks[num], nil
}

// ForEach returns an iterator to walk through all the blocks starting
// with the genesis block.
func (m *Memory) ForEach() database.Iterator {
	return &MemoryIterator{memory: m}
}

// Reset clears the in memory chain.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil

	return nil
}

// =============================================================================

// MemoryIterator represents the iteration implementation for walking
// through the blocks held in memory. This implements the
// database.Iterator interface.
type MemoryIterator struct {
	memory  *Memory // Access to the memory storage API.
	current uint64  // Current block number being iterated over.
	started bool    // The genesis block has been returned.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *MemoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	if mi.started {
		mi.current++
	}
	mi.started = true

	mi.memory.mu.RLock()
	defer mi.memory.mu.RUnlock()

	if mi.current >= uint64(len(mi.memory.blocks)) {
		mi.eoc = true
		return database.BlockData{}, errors.New("end of chain")
	}

	return mi.memory.blocks[mi.current], nil
}

// Done returns the end of chain value.
func (mi *MemoryIterator) Done() bool {
	return mi.eoc
}
