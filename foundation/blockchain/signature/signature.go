// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the value. The returned
// signature is the 65 byte [R|S|V] form produced by the secp256k1 curve.
func Sign(value any, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Check the signature validates against the public key that produced
	// it before handing it out.
	pub := crypto.FromECDSAPub(&privateKey.PublicKey)
	if !crypto.VerifySignature(pub, data, sig[:crypto.RecoveryIDOffset]) {
		return nil, errors.New("invalid signature produced")
	}

	return sig, nil
}

// Verify validates the signature was produced over the value by the private
// key belonging to the specified public key. The public key is the hex
// encoded uncompressed form that doubles as an address on this chain.
func Verify(value any, publicKey string, sig []byte) error {
	if len(sig) < crypto.RecoveryIDOffset {
		return errors.New("signature has the wrong length")
	}

	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return fmt.Errorf("decoding public key: %w", err)
	}

	data, err := stamp(value)
	if err != nil {
		return err
	}

	if !crypto.VerifySignature(pub, data, sig[:crypto.RecoveryIDOffset]) {
		return errors.New("signature does not match public key")
	}

	return nil
}

// PublicKeyString converts a public key into the hex encoded text form used
// as an address on this chain. There is no hashing step, the address is the
// public key itself.
func PublicKeyString(publicKey ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(&publicKey))
}

// SignatureString returns the signature as a string.
func SignatureString(sig []byte) string {
	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the Cadena stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Hash the data into a 32 byte array to provide length consistency.
	txHash := crypto.Keccak256(v)

	// This stamp is used so signatures produced when signing data are
	// always unique to the Cadena blockchain.
	stamp := []byte("\x19Cadena Signed Message:\n32")

	data := crypto.Keccak256(stamp, txHash)

	return data, nil
}
