package worker

import (
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
)

// peerOperations handles finding new peers.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list and pulls any blocks this node
// is missing.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.KnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			w.state.RemoveKnownPeer(pr)
			continue
		}

		// Add new peers to this node's list.
		w.addNewPeers(peerStatus.KnownPeers)

		// If this peer has a longer chain, pull it and let the longest
		// chain rule decide.
		if peerStatus.LatestBlockNumber > w.state.LatestBlock().Header.Number {
			w.evHandler("worker: runPeersOperation: peer[%s]: latestBlockNumber[%d]", pr.Host, peerStatus.LatestBlockNumber)

			if err := w.state.NetRequestPeerChain(pr); err != nil {
				w.evHandler("worker: runPeersOperation: requestPeerChain: %s: ERROR: %s", pr.Host, err)
			}
		}
	}

	// Let the latest set of peers know this node is available.
	for _, pr := range w.state.KnownPeers() {
		if err := w.state.NetRegisterWithPeer(pr); err != nil {
			w.evHandler("worker: runPeersOperation: registerWithPeer: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the node's list of known peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	w.evHandler("worker: addNewPeers: started")
	defer w.evHandler("worker: addNewPeers: completed")

	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(w.state.Host()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer-node %s", pr.Host)
		}
	}
}
