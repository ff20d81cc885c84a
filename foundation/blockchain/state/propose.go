package state

import (
	"errors"
	"fmt"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// ErrStaleBlock is returned when a proposed block is at a height the node
// has already mined past. It does not indicate a longer fork.
var ErrStaleBlock = errors.New("proposed block is stale")

// ProcessProposedBlock takes a block mined by a peer, validates it, and if
// that passes, adds the block to the chain. A block that is ahead of the
// next expected number returns ErrChainLinkageMismatch so the caller can
// request the peer's full chain instead.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: block[%s]", block.Hash())
	defer s.evHandler("state: ProcessProposedBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from
	// the function until done is called. That allows this function to
	// complete its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	latestBlock := s.db.LatestBlock()
	if block.Header.Number > latestBlock.Header.Number+1 {
		return fmt.Errorf("peer is ahead at block [%d], have [%d]: %w", block.Header.Number, latestBlock.Header.Number, database.ErrChainLinkageMismatch)
	}

	// A sibling block at an existing height is ignored. The fork resolves
	// when one side grows longer.
	if block.Header.Number <= latestBlock.Header.Number {
		return fmt.Errorf("block [%d] already have [%d]: %w", block.Header.Number, latestBlock.Header.Number, ErrStaleBlock)
	}

	return s.commitBlock(block)
}

// ProcessSubmittedChain takes an entire candidate chain from a peer and
// replaces the local chain when the candidate is strictly longer and fully
// valid from genesis. The mempool is rebuilt against the new chain.
func (s *State) ProcessSubmittedChain(blocks []database.Block) error {
	s.evHandler("state: ProcessSubmittedChain: started: blocks[%d]", len(blocks))
	defer s.evHandler("state: ProcessSubmittedChain: completed")

	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessSubmittedChain: signal runMiningOperation to terminate")
		done()
	}()

	if err := s.db.ReplaceChain(blocks); err != nil {
		if errors.Is(err, database.ErrShorterOrEqualChain) {
			s.evHandler("state: ProcessSubmittedChain: candidate not longer, keeping chain")
		}
		return err
	}

	s.evHandler("state: ProcessSubmittedChain: chain replaced: height[%d]", len(blocks))

	// Re-admit the pending transactions that are still valid against the
	// new chain. Transactions confirmed by the candidate or now conflicting
	// fall away.
	pending := s.mempool.Copy()
	s.mempool.Truncate()

	utxos := s.db.CopyUTXOSet()
	for _, tx := range pending {
		if _, _, err := s.db.FindTx(tx.ID); err == nil {
			continue
		}
		if err := s.mempool.Admit(tx, utxos); err != nil {
			s.evHandler("state: ProcessSubmittedChain: drop tx[%s]: %s", tx.ID, err)
		}
	}

	return nil
}
