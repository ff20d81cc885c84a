// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Genesis represents the network parameters fixed at chain creation. Every
// node that adopts the genesis block inherits these values for the lifetime
// of the network.
type Genesis struct {
	Date          time.Time       `json:"date"`            // Fixed timestamp so every node derives the identical genesis block.
	ChainID       uint16          `json:"chain_id"`        // An unique id for this network.
	TransPerBlock uint16          `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    uint16          `json:"difficulty"`      // Number of leading zero hex digits a block hash must have. Never changes.
	MiningReward  uint            `json:"mining_reward"`   // Exact amount of the coinbase output in every mined block.
	Balances      map[string]uint `json:"balances"`        // Premined outputs, keyed by address (public key text).
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis parameters describe a network this node can
// actually run.
func (g Genesis) Validate() error {
	if g.Date.IsZero() {
		return fmt.Errorf("genesis date is not set")
	}

	if g.Difficulty == 0 {
		return fmt.Errorf("genesis difficulty must be at least 1")
	}

	if g.MiningReward == 0 {
		return fmt.Errorf("genesis mining reward must be greater than zero")
	}

	if g.TransPerBlock == 0 {
		return fmt.Errorf("genesis trans per block must be at least 1")
	}

	return nil
}
