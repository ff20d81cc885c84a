package state

import (
	"github.com/cadenalabs/cadena/foundation/blockchain/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// into the mempool. On success the transaction is shared with the known
// peers and mining is signaled.
func (s *State) SubmitWalletTransaction(tx database.Tx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", tx.ID)
	defer s.evHandler("state: SubmitWalletTransaction: completed")

	if err := s.mempool.Admit(tx, s.db.CopyUTXOSet()); err != nil {
		return err
	}

	s.Worker.SignalShareTx(tx)
	s.Worker.SignalStartMining()

	return nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer node for
// inclusion into the mempool. Peer transactions are not re-shared, which
// keeps the gossip from echoing forever.
func (s *State) SubmitNodeTransaction(tx database.Tx) error {
	s.evHandler("state: SubmitNodeTransaction: started: tx[%s]", tx.ID)
	defer s.evHandler("state: SubmitNodeTransaction: completed")

	if err := s.mempool.Admit(tx, s.db.CopyUTXOSet()); err != nil {
		return err
	}

	s.Worker.SignalStartMining()

	return nil
}
