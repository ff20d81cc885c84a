package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/database/storage"
	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_Disk(t *testing.T) {
	t.Log("Given the need to persist blocks in their own files on disk.")
	{
		t.Logf("\tTest 0:\tWhen writing and reading back a chain.")
		{
			strg, err := storage.NewDisk(t.TempDir())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct disk storage: %v", failed, err)
			}
			defer strg.Close()

			testSerializer(t, strg)
		}
	}
}

func Test_Memory(t *testing.T) {
	t.Log("Given the need to keep blocks in memory for ephemeral nodes.")
	{
		t.Logf("\tTest 0:\tWhen writing and reading back a chain.")
		{
			strg, err := storage.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct memory storage: %v", failed, err)
			}
			defer strg.Close()

			testSerializer(t, strg)
		}
	}
}

// =============================================================================

// testSerializer drives any Serializer implementation through the write,
// read, iterate and reset cycle the database depends on.
func testSerializer(t *testing.T, strg database.Serializer) {
	t.Helper()

	blocks := testChain(t, 3)

	for _, block := range blocks {
		if err := strg.Write(database.NewBlockData(block)); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to write block %d: %v", failed, block.Header.Number, err)
		}
	}
	t.Logf("\t%s\tTest 0:\tShould be able to write the chain.", success)

	blockData, err := strg.GetBlock(1)
	if err != nil {
		t.Fatalf("\t%s\tTest 0:\tShould be able to read back block 1: %v", failed, err)
	}
	if blockData.Hash != blocks[1].Hash() {
		t.Errorf("\t%s\tTest 0:\tShould read back the block that was written.", failed)
	} else {
		t.Logf("\t%s\tTest 0:\tShould read back the block that was written.", success)
	}

	block, err := database.ToBlock(blockData)
	if err != nil {
		t.Fatalf("\t%s\tTest 0:\tShould be able to rebuild the block: %v", failed, err)
	}
	if block.Hash() != blocks[1].Hash() {
		t.Errorf("\t%s\tTest 0:\tShould rebuild a block with the same hash.", failed)
	} else {
		t.Logf("\t%s\tTest 0:\tShould rebuild a block with the same hash.", success)
	}

	// Walk the chain from genesis and confirm the order.
	var walked int
	iter := strg.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould be able to iterate the chain: %v", failed, err)
		}
		if blockData.Header.Number != uint64(walked) {
			t.Fatalf("\t%s\tTest 0:\tShould iterate in block order: got %d want %d.", failed, blockData.Header.Number, walked)
		}
		walked++
	}
	if walked != len(blocks) {
		t.Errorf("\t%s\tTest 0:\tShould iterate every block: got %d.", failed, walked)
	} else {
		t.Logf("\t%s\tTest 0:\tShould iterate every block in order.", success)
	}

	// After a reset the chain must read back empty.
	if err := strg.Reset(); err != nil {
		t.Fatalf("\t%s\tTest 0:\tShould be able to reset the storage: %v", failed, err)
	}

	iter = strg.ForEach()
	iter.Next()
	if !iter.Done() {
		t.Errorf("\t%s\tTest 0:\tShould have no blocks after a reset.", failed)
	} else {
		t.Logf("\t%s\tTest 0:\tShould have no blocks after a reset.", success)
	}
}

// testChain mines a short coinbase only chain for storage round trips.
func testChain(t *testing.T, length int) []database.Block {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate a private key: %v", failed, err)
	}
	addr := database.Address(signature.PublicKeyString(key.PublicKey))

	gen := genesis.Genesis{
		Date:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:       1,
		TransPerBlock: 10,
		Difficulty:    1,
		MiningReward:  50,
		Balances:      map[string]uint{string(addr): 1000},
	}

	genesisBlock, err := database.GenesisBlock(gen)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create the genesis block: %v", failed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	blocks := []database.Block{genesisBlock}
	for len(blocks) < length {
		prev := blocks[len(blocks)-1]
		coinbase := database.NewCoinbaseTx(addr, gen.MiningReward, prev.Header.Number+1)

		block, err := database.POW(ctx, gen, prev, []database.Tx{coinbase}, func(v string, args ...any) {})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to solve the proof of work: %v", failed, err)
		}
		blocks = append(blocks, block)
	}

	return blocks
}
