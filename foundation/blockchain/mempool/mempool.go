// Package mempool maintains the set of pending transactions waiting to be
// mined into a block.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// ErrDoubleSpend is returned when an admitted transaction already has a
// claim on one of the candidate's inputs.
var ErrDoubleSpend = errors.New("output already claimed by a pending transaction")

// Mempool represents a cache of pending transactions keyed by transaction
// id. Admission order is preserved so block selection is first come first
// served. Each input of an admitted transaction locks that outpoint
// against later arrivals.
type Mempool struct {
	mu     sync.RWMutex
	pool   map[string]entry
	locked map[database.TxInput]string
	seq    uint64
}

type entry struct {
	tx  database.Tx
	seq uint64
}

// New constructs a new mempool for use.
func New() *Mempool {
	return &Mempool{
		pool:   make(map[string]entry),
		locked: make(map[database.TxInput]string),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Admit validates a transaction against the confirmed UTXO set and the
// pending claims already in the pool, then adds it. Resubmitting a
// transaction already in the pool is a no-op.
func (mp *Mempool) Admit(tx database.Tx, utxos *database.UTXOSet) error {
	if err := tx.WellFormed(); err != nil {
		return err
	}
	if tx.IsCoinbase() {
		return fmt.Errorf("coinbase submitted to the pool: %w", database.ErrMalformed)
	}
	if err := tx.VerifySignature(); err != nil {
		return err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return nil
	}

	// Every input must be a live unspent output owned by the signer and
	// not already claimed by another pending transaction.
	from := tx.From()
	var inputSum uint
	for _, in := range tx.Inputs {
		if holder, claimed := mp.locked[in]; claimed {
			return fmt.Errorf("input %s[%d] claimed by tx [%s]: %w", in.TxID, in.OutputIndex, holder, ErrDoubleSpend)
		}

		out, found := utxos.Lookup(in)
		if !found {
			return fmt.Errorf("input %s[%d]: %w", in.TxID, in.OutputIndex, database.ErrUnknownOrSpentOutput)
		}
		if out.Address != from {
			return fmt.Errorf("input %s[%d] owned by [%s]: %w", in.TxID, in.OutputIndex, out.Address, database.ErrInvalidSignature)
		}

		next := inputSum + out.Amount
		if next < inputSum {
			return fmt.Errorf("input value overflow: %w", database.ErrMalformed)
		}
		inputSum = next
	}

	outputSum, err := tx.OutputSum()
	if err != nil {
		return err
	}
	if inputSum < outputSum {
		return fmt.Errorf("inputs [%d] outputs [%d]: %w", inputSum, outputSum, database.ErrInsufficientFunds)
	}

	mp.seq++
	mp.pool[tx.ID] = entry{tx: tx, seq: mp.seq}
	for _, in := range tx.Inputs {
		mp.locked[in] = tx.ID
	}

	return nil
}

// Delete removes a transaction from the pool and releases its claims.
func (mp *Mempool) Delete(tx database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(tx.ID)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
	mp.locked = make(map[database.TxInput]string)
}

// PickBest returns up to howMany transactions in admission order for the
// next block. Pass -1 for every transaction in the pool.
func (mp *Mempool) PickBest(howMany int) []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	entries := make([]entry, 0, len(mp.pool))
	for _, ent := range mp.pool {
		entries = append(entries, ent)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	if howMany == -1 || howMany > len(entries) {
		howMany = len(entries)
	}

	txs := make([]database.Tx, 0, howMany)
	for _, ent := range entries[:howMany] {
		txs = append(txs, ent.tx)
	}

	return txs
}

// Copy returns every transaction in the pool in admission order.
func (mp *Mempool) Copy() []database.Tx {
	return mp.PickBest(-1)
}

// remove expects the caller to hold the lock.
func (mp *Mempool) remove(txID string) {
	ent, exists := mp.pool[txID]
	if !exists {
		return
	}

	for _, in := range ent.tx.Inputs {
		if mp.locked[in] == txID {
			delete(mp.locked, in)
		}
	}
	delete(mp.pool, txID)
}
