package database

import "fmt"

// UTXO represents a single unspent output together with its outpoint. It is
// the flattened form handed out by queries.
type UTXO struct {
	TxID        string  `json:"tx_id"`
	OutputIndex int     `json:"output_index"`
	Amount      uint    `json:"amount"`
	Address     Address `json:"address"`
}

// =============================================================================

// UTXOSet is the authoritative index of spendable outputs, keyed by
// outpoint. An entry exists iff the output was created by a transaction in
// the accepted chain and not yet consumed by one. A secondary index by
// address keeps balance queries cheap.
//
// The set performs no locking of its own. It is always owned and guarded by
// a Database or cloned for validation work.
type UTXOSet struct {
	entries   map[TxInput]TxOutput
	byAddress map[Address]map[TxInput]struct{}
}

// NewUTXOSet constructs an empty set of unspent outputs.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{
		entries:   make(map[TxInput]TxOutput),
		byAddress: make(map[Address]map[TxInput]struct{}),
	}
}

// Apply removes the entries consumed by the transaction's inputs and inserts
// an entry for each of its outputs. The operation is all or nothing: if any
// input is unknown the set is left unchanged and ErrUnknownOrSpentOutput is
// returned. The consumed entries are returned so the caller can retain them
// for a later Revert; a transaction alone does not carry enough information
// to undo itself.
func (us *UTXOSet) Apply(tx Tx) (map[TxInput]TxOutput, error) {

	// Check every input before touching the set.
	for _, in := range tx.Inputs {
		if _, exists := us.entries[in]; !exists {
			return nil, fmt.Errorf("%w: %s:%d", ErrUnknownOrSpentOutput, in.TxID, in.OutputIndex)
		}
	}

	consumed := make(map[TxInput]TxOutput, len(tx.Inputs))
	for _, in := range tx.Inputs {
		consumed[in] = us.entries[in]
		us.remove(in)
	}

	for i, out := range tx.Outputs {
		us.insert(TxInput{TxID: tx.ID, OutputIndex: i}, out)
	}

	return consumed, nil
}

// Revert is the exact inverse of Apply: it removes the outputs the
// transaction created and reinserts the entries it consumed. The consumed
// map must be the one returned by the matching Apply call.
func (us *UTXOSet) Revert(tx Tx, consumed map[TxInput]TxOutput) {
	for i := range tx.Outputs {
		us.remove(TxInput{TxID: tx.ID, OutputIndex: i})
	}

	for in, out := range consumed {
		us.insert(in, out)
	}
}

// Lookup returns the output for the specified outpoint.
func (us *UTXOSet) Lookup(in TxInput) (TxOutput, bool) {
	out, exists := us.entries[in]
	return out, exists
}

// BalanceOf returns the sum of all unspent output amounts payable to the
// specified address.
func (us *UTXOSet) BalanceOf(addr Address) uint {
	var balance uint
	for in := range us.byAddress[addr] {
		balance += us.entries[in].Amount
	}

	return balance
}

// Count returns the number of unspent outputs in the set.
func (us *UTXOSet) Count() int {
	return len(us.entries)
}

// Entries returns a flattened copy of every unspent output.
func (us *UTXOSet) Entries() []UTXO {
	utxos := make([]UTXO, 0, len(us.entries))
	for in, out := range us.entries {
		utxos = append(utxos, UTXO{
			TxID:        in.TxID,
			OutputIndex: in.OutputIndex,
			Amount:      out.Amount,
			Address:     out.Address,
		})
	}

	return utxos
}

// EntriesByAddress returns a flattened copy of the unspent outputs payable
// to the specified address.
func (us *UTXOSet) EntriesByAddress(addr Address) []UTXO {
	utxos := make([]UTXO, 0, len(us.byAddress[addr]))
	for in := range us.byAddress[addr] {
		out := us.entries[in]
		utxos = append(utxos, UTXO{
			TxID:        in.TxID,
			OutputIndex: in.OutputIndex,
			Amount:      out.Amount,
			Address:     out.Address,
		})
	}

	return utxos
}

// Clone returns an independent copy of the set for validation work.
func (us *UTXOSet) Clone() *UTXOSet {
	clone := NewUTXOSet()
	for in, out := range us.entries {
		clone.insert(in, out)
	}

	return clone
}

// =============================================================================

func (us *UTXOSet) insert(in TxInput, out TxOutput) {
	us.entries[in] = out

	addrSet, exists := us.byAddress[out.Address]
	if !exists {
		addrSet = make(map[TxInput]struct{})
		us.byAddress[out.Address] = addrSet
	}
	addrSet[in] = struct{}{}
}

func (us *UTXOSet) remove(in TxInput) {
	out, exists := us.entries[in]
	if !exists {
		return
	}

	delete(us.entries, in)

	addrSet := us.byAddress[out.Address]
	delete(addrSet, in)
	if len(addrSet) == 0 {
		delete(us.byAddress, out.Address)
	}
}
