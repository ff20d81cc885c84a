package mempool_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/database/storage"
	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/mempool"
	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_Admission(t *testing.T) {
	t.Log("Given the need to manage pending transactions in the pool.")
	{
		t.Logf("\tTest 0:\tWhen admitting valid transactions.")
		{
			key, addr, utxos := setup(t, 1000)
			_, addrTo := newKey(t)

			mp := mempool.New()

			tx := spendTx(t, key, utxos.EntriesByAddress(addr), addrTo, 400, addr, 600)
			if err := mp.Admit(tx, utxos); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to admit a valid transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to admit a valid transaction.", success)

			if mp.Count() != 1 {
				t.Errorf("\t%s\tTest 0:\tShould have one transaction in the pool.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have one transaction in the pool.", success)
			}

			// Resubmitting the same transaction must be a no-op.
			if err := mp.Admit(tx, utxos); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept a resubmission quietly: %v", failed, err)
			}
			if mp.Count() != 1 {
				t.Errorf("\t%s\tTest 0:\tShould still have one transaction in the pool.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould still have one transaction in the pool.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen two transactions claim the same output.")
		{
			key, addr, utxos := setup(t, 1000)
			_, addrTo := newKey(t)

			mp := mempool.New()

			entries := utxos.EntriesByAddress(addr)
			txA := spendTx(t, key, entries, addrTo, 400, addr, 600)
			txB := spendTx(t, key, entries, addrTo, 100, addr, 900)

			if err := mp.Admit(txA, utxos); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to admit the first claim: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to admit the first claim.", success)

			err := mp.Admit(txB, utxos)
			if !errors.Is(err, mempool.ErrDoubleSpend) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the second claim: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the second claim.", success)

			// Deleting the winner releases the claim for the loser.
			mp.Delete(txA)
			if err := mp.Admit(txB, utxos); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould admit the loser after the claim is released: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould admit the loser after the claim is released.", success)
		}

		t.Logf("\tTest 2:\tWhen the transaction is not admissible.")
		{
			key, addr, utxos := setup(t, 100)
			_, addrTo := newKey(t)

			mp := mempool.New()

			// Asking for more than the inputs carry.
			over := spendTx(t, key, utxos.EntriesByAddress(addr), addrTo, 500, addr, 0)
			err := mp.Admit(over, utxos)
			if !errors.Is(err, database.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest 2:\tShould reject an overdraft: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject an overdraft.", success)

			// Spending an output that does not exist.
			ghost := spendTx(t, key, []database.UTXO{{TxID: "0xdeadbeef", OutputIndex: 0, Amount: 100, Address: addr}}, addrTo, 100, addr, 0)
			err = mp.Admit(ghost, utxos)
			if !errors.Is(err, database.ErrUnknownOrSpentOutput) {
				t.Fatalf("\t%s\tTest 2:\tShould reject an unknown output: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject an unknown output.", success)

			// A coinbase has no business in the pool.
			coinbase := database.NewCoinbaseTx(addr, 50, 1)
			err = mp.Admit(coinbase, utxos)
			if !errors.Is(err, database.ErrMalformed) {
				t.Fatalf("\t%s\tTest 2:\tShould reject a coinbase submission: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a coinbase submission.", success)

			// Outputs that wrap around the unsigned range must not pass
			// as an apparent sum of 99.
			wrap := spendTx(t, key, utxos.EntriesByAddress(addr), addrTo, ^uint(0), addr, 100)
			err = mp.Admit(wrap, utxos)
			if !errors.Is(err, database.ErrMalformed) {
				t.Fatalf("\t%s\tTest 2:\tShould reject overflowing outputs: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject overflowing outputs.", success)
		}
	}
}

func Test_PickBest(t *testing.T) {
	t.Log("Given the need to select transactions in admission order.")
	{
		t.Logf("\tTest 0:\tWhen picking from a pool of independent transactions.")
		{
			key, addr, utxos := setup(t, 600)
			_, addrTo := newKey(t)

			mp := mempool.New()

			// Break the single premined output into three independent
			// outputs so each pool transaction spends its own outpoint.
			entry := utxos.EntriesByAddress(addr)[0]
			split, err := database.NewTx(
				[]database.TxInput{{TxID: entry.TxID, OutputIndex: entry.OutputIndex}},
				[]database.TxOutput{
					{Amount: 100, Address: addr},
					{Amount: 200, Address: addr},
					{Amount: 300, Address: addr},
				},
			).Sign(key)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the split transaction: %v", failed, err)
			}
			if _, err := utxos.Apply(split); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the split transaction: %v", failed, err)
			}

			var admitted []string
			for i, amount := range []uint{100, 200, 300} {
				in := []database.UTXO{{TxID: split.ID, OutputIndex: i, Amount: amount, Address: addr}}
				tx := spendTx(t, key, in, addrTo, amount, addr, 0)
				if err := mp.Admit(tx, utxos); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to admit transaction: %v", failed, err)
				}
				admitted = append(admitted, tx.ID)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to admit three transactions.", success)

			picked := mp.PickBest(2)
			if len(picked) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould pick exactly two transactions: got %d.", failed, len(picked))
			}
			t.Logf("\t%s\tTest 0:\tShould pick exactly two transactions.", success)

			for i := range picked {
				if picked[i].ID != admitted[i] {
					t.Errorf("\t%s\tTest 0:\tShould preserve admission order at position %d.", failed, i)
				} else {
					t.Logf("\t%s\tTest 0:\tShould preserve admission order at position %d.", success, i)
				}
			}

			all := mp.PickBest(-1)
			if len(all) != 3 {
				t.Errorf("\t%s\tTest 0:\tShould return the whole pool for -1.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould return the whole pool for -1.", success)
			}

			mp.Truncate()
			if mp.Count() != 0 {
				t.Errorf("\t%s\tTest 0:\tShould have an empty pool after truncate.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have an empty pool after truncate.", success)
			}
		}
	}
}

// =============================================================================

func nopEv(v string, args ...any) {}

func newKey(t *testing.T) (*ecdsa.PrivateKey, database.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}

	return key, database.Address(signature.PublicKeyString(key.PublicKey))
}

// setup builds a UTXO set from a genesis that premines the specified
// amount to a fresh key.
func setup(t *testing.T, amount uint) (*ecdsa.PrivateKey, database.Address, *database.UTXOSet) {
	t.Helper()

	key, addr := newKey(t)

	balances := map[string]uint{string(addr): amount}

	gen := genesis.Genesis{
		Date:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		MiningReward:  50,
		Balances:      balances,
	}

	strg, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct memory storage: %v", failed, err)
	}

	db, err := database.New(gen, strg, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the database: %v", failed, err)
	}

	return key, addr, db.CopyUTXOSet()
}

// spendTx builds and signs a transaction over the provided outputs.
func spendTx(t *testing.T, key *ecdsa.PrivateKey, utxos []database.UTXO, to database.Address, amount uint, change database.Address, changeAmount uint) database.Tx {
	t.Helper()

	inputs := make([]database.TxInput, len(utxos))
	for i, utxo := range utxos {
		inputs[i] = database.TxInput{TxID: utxo.TxID, OutputIndex: utxo.OutputIndex}
	}

	outputs := []database.TxOutput{{Amount: amount, Address: to}}
	if changeAmount > 0 {
		outputs = append(outputs, database.TxOutput{Amount: changeAmount, Address: change})
	}

	tx, err := database.NewTx(inputs, outputs).Sign(key)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return tx
}
