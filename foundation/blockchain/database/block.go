package database

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/cadenalabs/cadena/foundation/blockchain/genesis"
	"github.com/cadenalabs/cadena/foundation/blockchain/merkle"
	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
)

// BlockHeader represents the information hashed to identify a block. The
// nonce participates in the hash, which is how the proof of work search is
// validated against the difficulty target.
type BlockHeader struct {
	Number        uint64 `json:"number"`          // Block height in the chain, starting at 0 for genesis.
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block, all zero for genesis.
	TimeStamp     uint64 `json:"timestamp"`       // Time the block was mined.
	Difficulty    uint16 `json:"difficulty"`      // Leading zero hex digits needed to solve the hash. Fixed at genesis.
	TransRoot     string `json:"trans_root"`      // Merkle tree root hash for the transactions in this block.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
}

// Block represents a group of transactions batched together. The first
// transaction must be the coinbase granting the mining reward.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[Tx]
}

// =============================================================================

// POW constructs a new Block on top of the previous block and performs the
// work to find a nonce that solves the cryptographic puzzle. The search is
// unbounded and polls the context so it can be cancelled when the chain tip
// moves underneath it.
func POW(ctx context.Context, gen genesis.Genesis, prevBlock Block, trans []Tx, ev func(v string, args ...any)) (Block, error) {

	// The root of the merkle tree ties the transactions into the header
	// that is being mined.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	// Validation requires the timestamp to move past the parent, so when a
	// block is mined within the same second the clock reading is bumped.
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp <= prevBlock.Header.TimeStamp {
		timeStamp = prevBlock.Header.TimeStamp + 1
	}

	nb := Block{
		Header: BlockHeader{
			Number:        prevBlock.Header.Number + 1,
			PrevBlockHash: prevBlock.Hash(),
			TimeStamp:     timeStamp,
			Difficulty:    gen.Difficulty,
			TransRoot:     tree.RootHex(),
			Nonce:         0,
		},
		Trans: tree,
	}

	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of finding a valid hash for the block. Pointer
// semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: performPOW: MINING: started: blk[%d]", b.Header.Number)
	defer ev("database: performPOW: MINING: completed: blk[%d]", b.Header.Number)

	// Choose a random starting point for the nonce. After this, the nonce
	// is incremented by 1 until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		// A chain replacement or shutdown cancels the search.
		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		hash := b.Hash()
		if !IsHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: performPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the block.
func (b Block) Hash() string {
	return signature.Hash(b.Header)
}

/// IsHashSolved checks the hash satisfies the proof of work rules: the
// difficulty number of leading hex digits must be zero.
func IsHashSolved(difficulty uint16, hash string) bool {
	const match = "0x00000000000000000"

	if len(hash) != 66 {
		return false
	}

	d := int(difficulty)
	if d > len(match)-2 {
		return false
	}

	return hash[:2+d] == match[:2+d]
}

// =============================================================================

// GenesisBlock deterministically derives block 0 from the genesis
// parameters. Every node sharing the same genesis file produces the
// identical block, which is what lets their chains interoperate. The
// premined balances become coinbase style outputs.
func GenesisBlock(gen genesis.Genesis) (Block, error) {

	// Iterate the balances in a stable order so the block hash is
	// reproducible.
	addresses := make([]string, 0, len(gen.Balances))
	for addr := range gen.Balances {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	trans := make([]Tx, 0, len(addresses))
	for _, addr := range addresses {
		tx := Tx{
			Outputs: []TxOutput{{Amount: gen.Balances[addr], Address: Address(addr)}},
		}
		tx.ID = ComputeTxID(tx)
		trans = append(trans, tx)
	}

	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	gb := Block{
		Header: BlockHeader{
			Number:        0,
			PrevBlockHash: signature.ZeroHash,
			TimeStamp:     uint64(gen.Date.UTC().Unix()),
			Difficulty:    gen.Difficulty,
			TransRoot:     tree.RootHex(),
			Nonce:         0,
		},
		Trans: tree,
	}

	return gb, nil
}

// =============================================================================

// BlockData represents what is serialized to disk and shared over the
// network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []Tx        `json:"trans"`
}

// NewBlockData constructs the value to serialize or share.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans.Values(),
	}
}

// ToBlock converts a BlockData into a Block. The hash carried on the wire
// is never trusted, validation always recomputes it.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: blockData.Header,
		Trans:  tree,
	}

	return nb, nil
}
