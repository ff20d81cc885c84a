package database

import "errors"

// Error variables for the validation failure taxonomy. Every failure is
// local and non-fatal: the offending transaction, block, or chain is
// discarded and the node's own state is never left partially mutated.
var (
	// ErrMalformed indicates a structural violation in a transaction.
	ErrMalformed = errors.New("transaction is malformed")

	// ErrInvalidSignature indicates the signature is missing, does not
	// verify, or the spent outputs belong to a different key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnknownOrSpentOutput indicates an input references an output that
	// does not exist in the UTXO set. This is how double spends and
	// unknown references are caught.
	ErrUnknownOrSpentOutput = errors.New("unknown or already spent output")

	// ErrInsufficientFunds indicates the outputs of a transaction are
	// worth more than its inputs.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidProofOfWork indicates a block hash does not satisfy the
	// network difficulty.
	ErrInvalidProofOfWork = errors.New("invalid proof of work")

	// ErrChainLinkageMismatch indicates a block does not extend the
	// current chain tip.
	ErrChainLinkageMismatch = errors.New("block does not link to the current chain")

	// ErrShorterOrEqualChain indicates a candidate chain was rejected
	// because it is not strictly longer than the local chain.
	ErrShorterOrEqualChain = errors.New("candidate chain is not longer than the current chain")

	// ErrGenesisMismatch indicates a candidate chain was built from a
	// different genesis block than this node's network.
	ErrGenesisMismatch = errors.New("candidate chain was built from a different genesis")
)
