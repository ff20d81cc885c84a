package worker

// Sync registers with the known peers and updates the peer list, mempool,
// and chain before the node starts accepting work.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.KnownPeers() {

		// Announce this node so the peer gossips back to us.
		if err := w.state.NetRegisterWithPeer(pr); err != nil {
			w.evHandler("worker: sync: registerWithPeer: %s: ERROR: %s", pr.Host, err)
		}

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// Retrieve the mempool from the peer.
		pool, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
		}
		for _, tx := range pool {
			w.evHandler("worker: sync: retrievePeerMempool: %s: add tx: %s", pr.Host, tx.ID)
			if err := w.state.SubmitNodeTransaction(tx); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: reject tx: %s", pr.Host, err)
			}
		}

		// If this peer has a longer chain, pull it and let the longest
		// chain rule decide.
		if peerStatus.LatestBlockNumber > w.state.LatestBlock().Header.Number {
			w.evHandler("worker: sync: retrievePeerChain: %s: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)

			if err := w.state.NetRequestPeerChain(pr); err != nil {
				w.evHandler("worker: sync: retrievePeerChain: %s: ERROR: %s", pr.Host, err)
			}
		}
	}
}
