// Package database handles all the lower level support for maintaining the
// blockchain including the UTXO set, the chain of blocks, and storage.
package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
)

// Serializer interface represents the behavior required to be implemented by
// any package providing support for persisting and iterating over blocks.
type Serializer interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Reset() error
	Close() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// Database manages data related to the blockchain. The chain of blocks and
// the UTXO set are kept consistent with each other under a single mutex.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	chain       []Block
	utxos       *UTXOSet
	storage     Serializer
}

// New constructs a new database and applies any existing blocks found in
// storage. If storage is empty, the genesis block is derived and written.
func New(gen genesis.Genesis, storage Serializer, ev func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis: gen,
		utxos:   NewUTXOSet(),
		storage: storage,
	}

	// Read the blockchain from storage into memory, validating each block
	// as if it was arriving over the network.
	iter := db.storage.ForEach()
	var loaded int
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		block, err := ToBlock(blockData)
		if err != nil {
			return nil, err
		}

		if loaded == 0 {
			if err := db.adoptGenesisBlock(block); err != nil {
				return nil, err
			}
		} else {
			if err := db.applyBlock(block); err != nil {
				return nil, fmt.Errorf("block [%d] from storage: %w", block.Header.Number, err)
			}
		}
		loaded++
	}

	if loaded > 0 {
		ev("database: New: loaded [%d] blocks from storage", loaded)
		return &db, nil
	}

	// Fresh node. Derive block 0 from the genesis parameters and persist it.
	gb, err := GenesisBlock(gen)
	if err != nil {
		return nil, err
	}

	if err := db.adoptGenesisBlock(gb); err != nil {
		return nil, err
	}

	if err := db.storage.Write(NewBlockData(gb)); err != nil {
		return nil, err
	}

	ev("database: New: created genesis block: hash[%s]", gb.Hash())

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.storage.Close()
}

// adoptGenesisBlock installs block 0. The block must match the block this
// node derives from its own genesis parameters, which guarantees every
// network parameter embedded in the genesis is shared.
func (db *Database) adoptGenesisBlock(block Block) error {
	gb, err := GenesisBlock(db.genesis)
	if err != nil {
		return err
	}

	if block.Hash() != gb.Hash() {
		return ErrGenesisMismatch
	}

	for _, tx := range block.Trans.Values() {
		if _, err := db.utxos.Apply(tx); err != nil {
			return err
		}
	}

	db.latestBlock = block
	db.chain = append(db.chain, block)

	return nil
}

// =============================================================================

// ValidateBlock checks a block against the current chain tip without
// mutating any state.
func (db *Database) ValidateBlock(block Block) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return validateBlock(block, db.genesis, db.latestBlock, db.utxos)
}

// ApplyBlock validates the block against the current tip and, if valid,
// applies its transactions to the UTXO set and persists it. The operation
// is all or nothing.
func (db *Database) ApplyBlock(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.applyBlock(block); err != nil {
		return err
	}

	return db.storage.Write(NewBlockData(block))
}

// applyBlock performs the validation and the atomic state transition. The
// caller must hold the lock.
func (db *Database) applyBlock(block Block) error {
	if err := validateBlock(block, db.genesis, db.latestBlock, db.utxos); err != nil {
		return err
	}

	// Apply each transaction, recording the outputs it consumed. If any
	// transaction fails the ones already applied are reverted in reverse
	// order so the set is untouched.
	trans := block.Trans.Values()
	consumed := make([]map[TxInput]TxOutput, 0, len(trans))

	for i, tx := range trans {
		spent, err := db.utxos.Apply(tx)
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				db.utxos.Revert(trans[j], consumed[j])
			}
			return fmt.Errorf("tx [%s]: %w", tx.ID, err)
		}
		consumed = append(consumed, spent)
	}

	db.latestBlock = block
	db.chain = append(db.chain, block)

	return nil
}

// validateBlock runs the full consensus checks for a candidate block
// against the given tip and UTXO set. The transactions are checked against
// a scratch copy of the set, applying each one as it passes, so a
// transaction may spend an output created earlier in the same block. The
// caller's set is never mutated.
func validateBlock(block Block, gen genesis.Genesis, prevBlock Block, utxos *UTXOSet) error {
	hash := block.Hash()

	if !IsHashSolved(block.Header.Difficulty, hash) {
		return fmt.Errorf("hash [%s] does not meet difficulty [%d]: %w", hash, block.Header.Difficulty, ErrInvalidProofOfWork)
	}

	if block.Header.Difficulty != gen.Difficulty {
		return fmt.Errorf("difficulty [%d] want [%d]: %w", block.Header.Difficulty, gen.Difficulty, ErrInvalidProofOfWork)
	}

	if block.Header.Number != prevBlock.Header.Number+1 {
		return fmt.Errorf("block number [%d] want [%d]: %w", block.Header.Number, prevBlock.Header.Number+1, ErrChainLinkageMismatch)
	}

	if block.Header.PrevBlockHash != prevBlock.Hash() {
		return fmt.Errorf("prev hash [%s] want [%s]: %w", block.Header.PrevBlockHash, prevBlock.Hash(), ErrChainLinkageMismatch)
	}

	if prevBlock.Header.TimeStamp > 0 && block.Header.TimeStamp <= prevBlock.Header.TimeStamp {
		return fmt.Errorf("timestamp [%d] not after parent [%d]: %w", block.Header.TimeStamp, prevBlock.Header.TimeStamp, ErrMalformed)
	}

	// The solved header must commit to the transactions the block carries.
	// Without this check the transaction list could be swapped under an
	// already solved header.
	if block.Header.TransRoot != block.Trans.RootHex() {
		return fmt.Errorf("trans root [%s] want [%s]: %w", block.Trans.RootHex(), block.Header.TransRoot, ErrMalformed)
	}

	trans := block.Trans.Values()
	if len(trans) == 0 {
		return fmt.Errorf("block has no transactions: %w", ErrMalformed)
	}

	// The first transaction must be the coinbase paying exactly the mining
	// reward to the miner. No other coinbase may appear in the block.
	coinbase := trans[0]
	if !coinbase.IsCoinbase() {
		return fmt.Errorf("first transaction is not a coinbase: %w", ErrMalformed)
	}
	coinbaseSum, err := coinbase.OutputSum()
	if err != nil {
		return fmt.Errorf("tx [%s]: %w", coinbase.ID, err)
	}
	if coinbaseSum != gen.MiningReward {
		return fmt.Errorf("coinbase pays [%d] want [%d]: %w", coinbaseSum, gen.MiningReward, ErrMalformed)
	}
	if coinbase.Height != block.Header.Number {
		return fmt.Errorf("coinbase height [%d] want [%d]: %w", coinbase.Height, block.Header.Number, ErrMalformed)
	}

	scratch := utxos.Clone()

	for i, tx := range trans {
		if i > 0 && tx.IsCoinbase() {
			return fmt.Errorf("tx [%s]: extra coinbase: %w", tx.ID, ErrMalformed)
		}

		if err := tx.WellFormed(); err != nil {
			return fmt.Errorf("tx [%s]: %w", tx.ID, err)
		}

		if err := tx.VerifySignature(); err != nil {
			return fmt.Errorf("tx [%s]: %w", tx.ID, err)
		}

		if !tx.IsCoinbase() {

			// Every consumed output must exist in the scratch set as it
			// stands after the preceding transactions, must belong to the
			// signer, and the inputs must cover the outputs.
			from := tx.From()
			var inputSum uint
			for _, in := range tx.Inputs {
				out, found := scratch.Lookup(in)
				if !found {
					return fmt.Errorf("tx [%s]: input %s[%d]: %w", tx.ID, in.TxID, in.OutputIndex, ErrUnknownOrSpentOutput)
				}
				if out.Address != from {
					return fmt.Errorf("tx [%s]: input %s[%d] owned by [%s]: %w", tx.ID, in.TxID, in.OutputIndex, out.Address, ErrInvalidSignature)
				}

				next := inputSum + out.Amount
				if next < inputSum {
					return fmt.Errorf("tx [%s]: input value overflow: %w", tx.ID, ErrMalformed)
				}
				inputSum = next
			}

			outputSum, err := tx.OutputSum()
			if err != nil {
				return fmt.Errorf("tx [%s]: %w", tx.ID, err)
			}
			if inputSum < outputSum {
				return fmt.Errorf("tx [%s]: inputs [%d] outputs [%d]: %w", tx.ID, inputSum, outputSum, ErrInsufficientFunds)
			}
		}

		// Make the outputs of this transaction spendable by the ones that
		// follow it in the block.
		if _, err := scratch.Apply(tx); err != nil {
			return fmt.Errorf("tx [%s]: %w", tx.ID, err)
		}
	}

	return nil
}

// =============================================================================

// ValidateChain runs the full consensus checks over an entire candidate
// chain against a fresh UTXO set. On success it returns the set the chain
// produces.
func (db *Database) ValidateChain(blocks []Block) (*UTXOSet, error) {
	db.mu.RLock()
	gen := db.genesis
	db.mu.RUnlock()

	if len(blocks) == 0 {
		return nil, fmt.Errorf("empty chain: %w", ErrMalformed)
	}

	gb, err := GenesisBlock(gen)
	if err != nil {
		return nil, err
	}

	if blocks[0].Hash() != gb.Hash() {
		return nil, ErrGenesisMismatch
	}

	utxos := NewUTXOSet()
	for _, tx := range blocks[0].Trans.Values() {
		if _, err := utxos.Apply(tx); err != nil {
			return nil, err
		}
	}

	prevBlock := blocks[0]
	for _, block := range blocks[1:] {
		if err := validateBlock(block, gen, prevBlock, utxos); err != nil {
			return nil, fmt.Errorf("block [%d]: %w", block.Header.Number, err)
		}

		for _, tx := range block.Trans.Values() {
			if _, err := utxos.Apply(tx); err != nil {
				return nil, fmt.Errorf("block [%d]: tx [%s]: %w", block.Header.Number, tx.ID, err)
			}
		}
		prevBlock = block
	}

	return utxos, nil
}

// ReplaceChain swaps the node's chain for the candidate when the candidate
// is strictly longer and fully valid. Storage is rewritten to match.
func (db *Database) ReplaceChain(blocks []Block) error {
	db.mu.RLock()
	currentLen := len(db.chain)
	db.mu.RUnlock()

	if len(blocks) <= currentLen {
		return ErrShorterOrEqualChain
	}

	utxos, err := db.ValidateChain(blocks)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// A block may have landed while the candidate was being validated.
	if len(blocks) <= len(db.chain) {
		return ErrShorterOrEqualChain
	}

	if err := db.storage.Reset(); err != nil {
		return err
	}
	for _, block := range blocks {
		if err := db.storage.Write(NewBlockData(block)); err != nil {
			return err
		}
	}

	db.chain = make([]Block, len(blocks))
	copy(db.chain, blocks)
	db.latestBlock = blocks[len(blocks)-1]
	db.utxos = utxos

	return nil
}

// =============================================================================

// Genesis returns a copy of the genesis information.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// LatestBlock returns the current chain tip.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Height returns the number of blocks in the chain.
func (db *Database) Height() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.chain)
}

// Chain returns a copy of the full chain from genesis to tip.
func (db *Database) Chain() []Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	chain := make([]Block, len(db.chain))
	copy(chain, db.chain)

	return chain
}

// BlockByNumber retrieves the block at the specified height.
func (db *Database) BlockByNumber(num uint64) (Block, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if num >= uint64(len(db.chain)) {
		return Block{}, errors.New("block not found")
	}

	return db.chain[num], nil
}

// BalanceOf sums the unspent outputs held by the specified address.
func (db *Database) BalanceOf(address Address) uint {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.BalanceOf(address)
}

// UTXOs returns the flattened unspent output set, sorted for stable output.
func (db *Database) UTXOs() []UTXO {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return sortUTXOs(db.utxos.Entries())
}

// UTXOsByAddress returns the unspent outputs held by the specified address.
func (db *Database) UTXOsByAddress(address Address) []UTXO {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return sortUTXOs(db.utxos.EntriesByAddress(address))
}

// CopyUTXOSet returns a deep copy of the current UTXO set for speculative
// validation outside the lock.
func (db *Database) CopyUTXOSet() *UTXOSet {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.utxos.Clone()
}

// FindTx searches the chain for a confirmed transaction and reports the
// block it was found in.
func (db *Database) FindTx(txID string) (Tx, uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for i := len(db.chain) - 1; i >= 0; i-- {
		for _, tx := range db.chain[i].Trans.Values() {
			if tx.ID == txID {
				return tx, db.chain[i].Header.Number, nil
			}
		}
	}

	return Tx{}, 0, errors.New("transaction not found")
}

func sortUTXOs(utxos []UTXO) []UTXO {
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].TxID != utxos[j].TxID {
			return utxos[i].TxID < utxos[j].TxID
		}
		return utxos[i].OutputIndex < utxos[j].OutputIndex
	})

	return utxos
}
