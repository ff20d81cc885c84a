package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/database/storage"
	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/cadenalabs/cadena/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_Mining(t *testing.T) {
	t.Log("Given the need to mine blocks out of pending transactions.")
	{
		t.Logf("\tTest 0:\tWhen a wallet transaction arrives.")
		{
			key, addr := newKey(t)
			_, miner := newKey(t)
			_, addrTo := newKey(t)

			st, wkr := newState(t, miner, map[string]uint{string(addr): 1000})
			defer st.Shutdown()

			tx := spendTx(t, key, st.UTXOsByAddress(addr), addrTo, 400, addr, 600)
			if err := st.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit a wallet transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to submit a wallet transaction.", success)

			if len(wkr.shared) != 1 || wkr.shared[0].ID != tx.ID {
				t.Errorf("\t%s\tTest 0:\tShould share the transaction with peers.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould share the transaction with peers.", success)
			}
			if wkr.started == 0 {
				t.Errorf("\t%s\tTest 0:\tShould signal the mining operation.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould signal the mining operation.", success)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			block, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine a new block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine a new block.", success)

			if block.Header.Number != 1 {
				t.Errorf("\t%s\tTest 0:\tShould have mined block 1: got %d.", failed, block.Header.Number)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have mined block 1.", success)
			}
			if st.MempoolLength() != 0 {
				t.Errorf("\t%s\tTest 0:\tShould have drained the mempool.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have drained the mempool.", success)
			}

			if balance := st.BalanceOf(miner); balance != st.Genesis().MiningReward {
				t.Errorf("\t%s\tTest 0:\tShould pay the reward to the beneficiary: got %d.", failed, balance)
			} else {
				t.Logf("\t%s\tTest 0:\tShould pay the reward to the beneficiary.", success)
			}
			if balance := st.BalanceOf(addrTo); balance != 400 {
				t.Errorf("\t%s\tTest 0:\tShould move the funds to the recipient: got %d.", failed, balance)
			} else {
				t.Logf("\t%s\tTest 0:\tShould move the funds to the recipient.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen the mempool is empty.")
		{
			_, miner := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(miner): 1000})
			defer st.Shutdown()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// Nothing pending still produces a block. The coinbase alone
			// keeps the reward flowing.
			block, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould mine a block holding only the coinbase: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould mine a block holding only the coinbase.", success)

			if trans := block.Trans.Values(); len(trans) != 1 {
				t.Errorf("\t%s\tTest 1:\tShould carry exactly one transaction: got %d.", failed, len(trans))
			} else {
				t.Logf("\t%s\tTest 1:\tShould carry exactly one transaction.", success)
			}
			if balance := st.BalanceOf(miner); balance != 1000+st.Genesis().MiningReward {
				t.Errorf("\t%s\tTest 1:\tShould pay the reward to the beneficiary: got %d.", failed, balance)
			} else {
				t.Logf("\t%s\tTest 1:\tShould pay the reward to the beneficiary.", success)
			}
		}

		t.Logf("\tTest 2:\tWhen mining has been disabled.")
		{
			key, addr := newKey(t)
			_, miner := newKey(t)
			_, addrTo := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(addr): 1000})
			defer st.Shutdown()

			tx := spendTx(t, key, st.UTXOsByAddress(addr), addrTo, 400, addr, 600)
			if err := st.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould accept the transaction: %v", failed, err)
			}

			st.DisableMining()
			if _, err := st.MineNewBlock(context.Background()); !errors.Is(err, state.ErrMiningDisabled) {
				t.Fatalf("\t%s\tTest 2:\tShould refuse to mine while disabled: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould refuse to mine while disabled.", success)

			if st.MempoolLength() != 1 {
				t.Errorf("\t%s\tTest 2:\tShould keep accepting transactions while disabled.", failed)
			} else {
				t.Logf("\t%s\tTest 2:\tShould keep accepting transactions while disabled.", success)
			}

			st.EnableMining()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := st.MineNewBlock(ctx); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould mine again once enabled: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould mine again once enabled.", success)
		}

		t.Logf("\tTest 3:\tWhen a peer block spends what a pending transaction spends.")
		{
			key, addr := newKey(t)
			_, miner := newKey(t)
			_, peerMiner := newKey(t)
			_, addrB := newKey(t)
			_, addrC := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(addr): 1000})
			defer st.Shutdown()

			premine := st.UTXOsByAddress(addr)
			pending := spendTx(t, key, premine, addrB, 300, addr, 700)
			if err := st.SubmitWalletTransaction(pending); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould accept the pending transaction: %v", failed, err)
			}

			// A peer wins the race with a block spending the same output
			// to someone else.
			conflict := spendTx(t, key, premine, addrC, 400, addr, 600)
			b1 := mineNext(t, st.Genesis(), st.LatestBlock(), peerMiner, conflict)
			if err := st.ProcessProposedBlock(b1); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould accept the peer block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould accept the peer block.", success)

			if st.MempoolLength() != 0 {
				t.Errorf("\t%s\tTest 3:\tShould drop the conflicting pending transaction.", failed)
			} else {
				t.Logf("\t%s\tTest 3:\tShould drop the conflicting pending transaction.", success)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			block, err := st.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould keep mining past the conflict: %v", failed, err)
			}
			if block.Header.Number != 2 {
				t.Errorf("\t%s\tTest 3:\tShould keep mining past the conflict: got block %d.", failed, block.Header.Number)
			} else {
				t.Logf("\t%s\tTest 3:\tShould keep mining past the conflict.", success)
			}
		}
	}
}

func Test_ProposedBlocks(t *testing.T) {
	t.Log("Given the need to process blocks mined by peers.")
	{
		t.Logf("\tTest 0:\tWhen a peer proposes the next block.")
		{
			_, miner := newKey(t)
			_, peerMiner := newKey(t)

			st, wkr := newState(t, miner, map[string]uint{string(miner): 1000})
			defer st.Shutdown()

			b1 := mineNext(t, st.Genesis(), st.LatestBlock(), peerMiner)
			if err := st.ProcessProposedBlock(b1); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the next block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the next block.", success)

			if wkr.cancels == 0 {
				t.Errorf("\t%s\tTest 0:\tShould cancel any mining in flight.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould cancel any mining in flight.", success)
			}
			if st.LatestBlock().Header.Number != 1 {
				t.Errorf("\t%s\tTest 0:\tShould have advanced the chain tip.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould have advanced the chain tip.", success)
			}

			// The same block again is behind the tip now.
			if err := st.ProcessProposedBlock(b1); !errors.Is(err, state.ErrStaleBlock) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a stale block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a stale block.", success)
		}

		t.Logf("\tTest 1:\tWhen a peer proposes a block from further ahead.")
		{
			_, miner := newKey(t)
			_, peerMiner := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(miner): 1000})
			defer st.Shutdown()

			// Mine two blocks past the tip but only propose the second.
			b1 := mineNext(t, st.Genesis(), st.LatestBlock(), peerMiner)
			b2 := mineNext(t, st.Genesis(), b1, peerMiner)

			err := st.ProcessProposedBlock(b2)
			if !errors.Is(err, database.ErrChainLinkageMismatch) {
				t.Fatalf("\t%s\tTest 1:\tShould report the peer is ahead: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report the peer is ahead.", success)

			if st.LatestBlock().Header.Number != 0 {
				t.Errorf("\t%s\tTest 1:\tShould not have moved the chain tip.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould not have moved the chain tip.", success)
			}
		}
	}
}

func Test_SubmittedChain(t *testing.T) {
	t.Log("Given the need to adopt a longer chain from a peer.")
	{
		t.Logf("\tTest 0:\tWhen a strictly longer valid chain arrives.")
		{
			key, addr := newKey(t)
			_, miner := newKey(t)
			_, peerMiner := newKey(t)
			_, addrTo := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(addr): 1000})
			defer st.Shutdown()

			// A pending transaction that does not conflict with the
			// candidate chain must survive the replacement.
			tx := spendTx(t, key, st.UTXOsByAddress(addr), addrTo, 400, addr, 600)
			if err := st.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the pending transaction: %v", failed, err)
			}

			gen := st.Genesis()
			genesisBlock := st.Chain()[0]
			b1 := mineNext(t, gen, genesisBlock, peerMiner)
			b2 := mineNext(t, gen, b1, peerMiner)

			if err := st.ProcessSubmittedChain([]database.Block{genesisBlock, b1, b2}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould adopt the longer chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould adopt the longer chain.", success)

			if st.LatestBlock().Header.Number != 2 {
				t.Errorf("\t%s\tTest 0:\tShould be at the candidate tip.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould be at the candidate tip.", success)
			}
			if balance := st.BalanceOf(peerMiner); balance != 2*gen.MiningReward {
				t.Errorf("\t%s\tTest 0:\tShould credit the candidate miner: got %d.", failed, balance)
			} else {
				t.Logf("\t%s\tTest 0:\tShould credit the candidate miner.", success)
			}

			if st.MempoolLength() != 1 {
				t.Errorf("\t%s\tTest 0:\tShould re-admit the surviving transaction.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould re-admit the surviving transaction.", success)
			}
		}

		t.Logf("\tTest 1:\tWhen the candidate chain is not longer.")
		{
			_, miner := newKey(t)
			_, peerMiner := newKey(t)

			st, _ := newState(t, miner, map[string]uint{string(miner): 1000})
			defer st.Shutdown()

			gen := st.Genesis()
			genesisBlock := st.Chain()[0]
			b1 := mineNext(t, gen, genesisBlock, peerMiner)
			if err := st.ProcessProposedBlock(b1); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the setup block: %v", failed, err)
			}

			err := st.ProcessSubmittedChain([]database.Block{genesisBlock, b1})
			if !errors.Is(err, database.ErrShorterOrEqualChain) {
				t.Fatalf("\t%s\tTest 1:\tShould reject an equal length chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject an equal length chain.", success)
		}
	}
}

// =============================================================================

// stubWorker satisfies the state.Worker interface and records the signals
// it receives.
type stubWorker struct {
	started int
	cancels int
	shared  []database.Tx
}

func (w *stubWorker) Shutdown()          {}
func (w *stubWorker) Sync()              {}
func (w *stubWorker) SignalStartMining() { w.started++ }

func (w *stubWorker) SignalCancelMining() (done func()) {
	w.cancels++
	return func() {}
}

func (w *stubWorker) SignalShareTx(tx database.Tx) {
	w.shared = append(w.shared, tx)
}

// =============================================================================

func newKey(t *testing.T) (*ecdsa.PrivateKey, database.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}

	return key, database.Address(signature.PublicKeyString(key.PublicKey))
}

// newState constructs a node state over memory storage with a stub worker
// attached in place of the real mining goroutines.
func newState(t *testing.T, beneficiary database.Address, balances map[string]uint) (*state.State, *stubWorker) {
	t.Helper()

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

	st, err := state.New(state.Config{
		Beneficiary: beneficiary,
		Host:        "localhost:9080",
		Genesis:     gen,
		Storage:     strg,
		KnownPeers:  peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	wkr := stubWorker{}
	st.Worker = &wkr

	return st, &wkr
}

// mineNext solves the proof of work for a block on top of the specified
// previous block, carrying the coinbase plus any extra transactions.
func mineNext(t *testing.T, gen genesis.Genesis, prevBlock database.Block, beneficiary database.Address, extra ...database.Tx) database.Block {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coinbase := database.NewCoinbaseTx(beneficiary, gen.MiningReward, prevBlock.Header.Number+1)
	trans := append([]database.Tx{coinbase}, extra...)

	block, err := database.POW(ctx, gen, prevBlock, trans, func(v string, args ...any) {})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to solve the proof of work: %v", failed, err)
	}

	return block
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
