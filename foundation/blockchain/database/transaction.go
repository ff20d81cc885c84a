package database

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/cadenalabs/cadena/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Address represents the recipient of an output. It is the sender's public
// key in its hex encoded uncompressed form. There is no separate hashing
// step, the public key text itself is the address.
type Address string

// =============================================================================

// TxInput references a prior output by transaction id and output index.
// The pair is also called an outpoint and is the key of the UTXO set.
type TxInput struct {
	TxID        string `json:"tx_id"`
	OutputIndex int    `json:"output_index"`
}

// TxOutput carries an amount of coin and the address it is payable to.
type TxOutput struct {
	Amount  uint    `json:"amount"`
	Address Address `json:"address"`
}

// =============================================================================

// Tx is the transactional information between two parties. A transaction
// with zero inputs is a coinbase transaction: it grants the mining reward,
// must be first in its block, and is exempt from signature and input checks.
type Tx struct {
	ID        string     `json:"id"`
	Inputs    []TxInput  `json:"inputs"`
	Outputs   []TxOutput `json:"outputs"`
	Height    uint64     `json:"height,omitempty"`
	PublicKey string     `json:"public_key,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

// txContent represents the fields covered by the transaction id and by the
// signature. The public key and signature are excluded so the id is stable
// before signing. The height tag keeps coinbase transactions unique per
// block, otherwise two blocks mined to the same address would produce
// colliding outpoints.
type txContent struct {
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
	Height  uint64     `json:"height,omitempty"`
}

// NewTx constructs an unsigned transaction and computes its id.
func NewTx(inputs []TxInput, outputs []TxOutput) Tx {
	tx := Tx{
		Inputs:  inputs,
		Outputs: outputs,
	}
	tx.ID = ComputeTxID(tx)

	return tx
}

// NewCoinbaseTx constructs the reward granting transaction for the block
// being mined at the specified height.
func NewCoinbaseTx(beneficiary Address, reward uint, height uint64) Tx {
	tx := Tx{
		Outputs: []TxOutput{{Amount: reward, Address: beneficiary}},
		Height:  height,
	}
	tx.ID = ComputeTxID(tx)

	return tx
}

// ComputeTxID returns the deterministic digest over the inputs and outputs
// of the transaction. The signature and public key are not part of the id.
func ComputeTxID(tx Tx) string {
	return signature.Hash(txContent{
		Inputs:  tx.Inputs,
		Outputs: tx.Outputs,
		Height:  tx.Height,
	})
}

// Sign signs the transaction content with the specified private key and
// attaches the sender's public key. The signature covers the same content
// the id is computed over.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	content := txContent{
		Inputs:  tx.Inputs,
		Outputs: tx.Outputs,
		Height:  tx.Height,
	}

	sig, err := signature.Sign(content, privateKey)
	if err != nil {
		return Tx{}, err
	}

	tx.ID = ComputeTxID(tx)
	tx.PublicKey = signature.PublicKeyString(privateKey.PublicKey)
	tx.Signature = hexutil.Encode(sig)

	return tx, nil
}

// IsCoinbase reports whether this transaction grants the mining reward.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

/// WellFormed performs the structural checks on a transaction: outputs must
// be non-empty, inputs may not repeat, and the id must match the content.
func (tx Tx) WellFormed() error {
	if len(tx.Outputs) == 0 {
		return fmt.Errorf("%w: no outputs", ErrMalformed)
	}

	seen := make(map[TxInput]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in]; exists {
			return fmt.Errorf("%w: duplicate input %s:%d", ErrMalformed, in.TxID, in.OutputIndex)
		}
		seen[in] = struct{}{}
	}

	if tx.ID != ComputeTxID(tx) {
		return fmt.Errorf("%w: id does not match content", ErrMalformed)
	}

	return nil
}

// VerifySignature validates the attached signature covers this transaction
// and was produced by the attached public key. Coinbase transactions skip
// this check entirely.
func (tx Tx) VerifySignature() error {
	if tx.IsCoinbase() {
		return nil
	}

	if tx.PublicKey == "" || tx.Signature == "" {
		return fmt.Errorf("%w: missing public key or signature", ErrInvalidSignature)
	}

	sig, err := hexutil.Decode(tx.Signature)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	content := txContent{
		Inputs:  tx.Inputs,
		Outputs: tx.Outputs,
		Height:  tx.Height,
	}

	if err := signature.Verify(content, tx.PublicKey, sig); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return nil
}

// From returns the address of the account that signed the transaction.
func (tx Tx) From() Address {
	return Address(tx.PublicKey)
}

// OutputSum returns the total value created by the transaction. A sum that
// wraps around is rejected so the inputs cover outputs rule cannot be
// defeated with overflowing amounts.
func (tx Tx) OutputSum() (uint, error) {
	var sum uint
	for _, out := range tx.Outputs {
		next := sum + out.Amount
		if next < sum {
			return 0, fmt.Errorf("%w: output value overflow", ErrMalformed)
		}
		sum = next
	}

	return sum, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:[in %d|out %d]", tx.ID[:10], len(tx.Inputs), len(tx.Outputs))
}

// =============================================================================

// Hash implements the merkle Hashable interface for providing a hash
// of a transaction.
func (tx Tx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.ID == otherTx.ID && tx.Signature == otherTx.Signature
}
