package public

import (
	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
)

type nodeStatus struct {
	LatestBlockHash   string      `json:"latest_block_hash"`
	LatestBlockNumber uint64      `json:"latest_block_number"`
	ChainHeight       int         `json:"chain_height"`
	UTXOCount         int         `json:"utxo_count"`
	MempoolLength     int         `json:"mempool_length"`
	MiningEnabled     bool        `json:"mining_enabled"`
	KnownPeers        []peer.Peer `json:"known_peers"`
}

type accountBalance struct {
	Address database.Address `json:"address"`
	Balance uint             `json:"balance"`
	UTXOs   int              `json:"utxos"`
}

type miningStatus struct {
	Enabled bool `json:"enabled"`
	Pending int  `json:"pending"`
}

type txResult struct {
	Status      string      `json:"status"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	Tx          database.Tx `json:"tx"`
}
