package state

import (
	"context"
	"errors"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// =============================================================================

// ErrMiningDisabled is returned when mining has been paused by an operator.
var ErrMiningDisabled = errors.New("mining is disabled")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	defer s.evHandler("state: MineNewBlock: completed")

	s.evHandler("state: MineNewBlock: MINING: check mining allowed")

	if !s.IsMiningAllowed() {
		return database.Block{}, ErrMiningDisabled
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// The coinbase paying the mining reward must be the first transaction
	// in the block. Its height keeps its outputs unique across blocks. A
	// block carrying nothing but the coinbase is legal.
	latestBlock := s.db.LatestBlock()
	coinbase := database.NewCoinbaseTx(s.beneficiary, s.genesis.MiningReward, latestBlock.Header.Number+1)

	trans := []database.Tx{coinbase}
	trans = append(trans, s.mempool.PickBest(int(s.genesis.TransPerBlock)-1)...)

	// Attempt to create a new block by solving the POW puzzle. This can
	// be cancelled.
	block, err := database.POW(ctx, s.genesis, latestBlock, trans, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: commit to local state")

	if err := s.commitBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// commitBlock validates the block against the chain tip, applies it, and
// removes its transactions from the mempool. Pending transactions the block
// made unspendable are dropped so they cannot poison future candidates.
func (s *State) commitBlock(block database.Block) error {
	if err := s.db.ApplyBlock(block); err != nil {
		return err
	}

	for _, tx := range block.Trans.Values() {
		s.mempool.Delete(tx)
	}

	pending := s.mempool.Copy()
	s.mempool.Truncate()

	utxos := s.db.CopyUTXOSet()
	for _, tx := range pending {
		if err := s.mempool.Admit(tx, utxos); err != nil {
			s.evHandler("state: commitBlock: drop tx[%s]: %s", tx.ID, err)
		}
	}

	return nil
}
