// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"sync"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/mempool"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Tx)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Beneficiary database.Address
	Host        string
	Genesis     genesis.Genesis
	Storage     database.Serializer
	KnownPeers  *peer.PeerSet
	EvHandler   EventHandler
}

// State manages the blockchain database.
type State struct {
	mu          sync.RWMutex
	allowMining bool

	beneficiary database.Address
	host        string
	evHandler   EventHandler

	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	mempool    *mempool.Mempool
	db         *database.Database

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the database for the blockchain. Existing blocks are loaded
	// from storage and revalidated, or a genesis block is created.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		allowMining: true,

		beneficiary: cfg.Beneficiary,
		host:        cfg.Host,
		evHandler:   ev,

		genesis:    cfg.Genesis,
		knownPeers: cfg.KnownPeers,
		mempool:    mempool.New(),
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// =============================================================================

// EnableMining allows the mining operation to run again after a call
// to DisableMining.
func (s *State) EnableMining() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = true
	s.Worker.SignalStartMining()
}

// DisableMining pauses the mining operation. Transactions continue to be
// accepted into the mempool.
func (s *State) DisableMining() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = false
}

// IsMiningAllowed reports whether the node is currently willing to mine.
func (s *State) IsMiningAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allowMining
}
