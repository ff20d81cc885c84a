package state

import (
	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
)

// Host returns a copy of host information.
func (s *State) Host() string {
	return s.host
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// LatestBlock returns a copy of the current latest block.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// ChainHeight returns the number of blocks in the chain.
func (s *State) ChainHeight() int {
	return s.db.Height()
}

// Chain returns a copy of the full chain from genesis to tip.
func (s *State) Chain() []database.Block {
	return s.db.Chain()
}

// BlockByNumber retrieves the block at the specified height.
func (s *State) BlockByNumber(num uint64) (database.Block, error) {
	return s.db.BlockByNumber(num)
}

// Mempool returns a copy of the mempool in admission order.
func (s *State) Mempool() []database.Tx {
	return s.mempool.Copy()
}

// MempoolLength returns the current length of the mempool.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// BalanceOf sums the unspent outputs held by the specified address.
func (s *State) BalanceOf(address database.Address) uint {
	return s.db.BalanceOf(address)
}

// UTXOs returns the full unspent output set.
func (s *State) UTXOs() []database.UTXO {
	return s.db.UTXOs()
}

// UTXOsByAddress returns the unspent outputs held by the specified address.
func (s *State) UTXOsByAddress(address database.Address) []database.UTXO {
	return s.db.UTXOsByAddress(address)
}

// FindTx searches the chain for a confirmed transaction.
func (s *State) FindTx(txID string) (database.Tx, uint64, error) {
	return s.db.FindTx(txID)
}

// KnownPeers retrieves a copy of the known peer list.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to
// the known peer list. It returns true when the peer was
// not already known.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	return s.knownPeers.Add(pr)
}

// RemoveKnownPeer provides the ability to remove a peer from
// the known peer list.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.knownPeers.Remove(pr)
}
