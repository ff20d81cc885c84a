package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
)

const baseURL = "http://%s/v1/node"

// NetSendBlockToPeers takes the newly mined block and sends it to all the
// known peers. A peer that cannot be reached is skipped.
func (s *State) NetSendBlockToPeers(block database.Block) {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	blockData := database.NewBlockData(block)

	for _, pr := range s.KnownPeers() {
		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		if err := s.send(http.MethodPost, url, blockData, nil); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: peer[%s]: %s", pr.Host, err)
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}
}

// NetSendTxToPeers shares a new wallet transaction with the known peers.
// A peer that cannot be reached is skipped.
func (s *State) NetSendTxToPeers(tx database.Tx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	for _, pr := range s.KnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))

		if err := s.send(http.MethodPost, url, tx, nil); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: peer[%s]: %s", pr.Host, err)
		}
	}
}

// NetSendChainToPeer answers a fork by pushing this node's full chain to
// the specified peer so the longer side can win.
func (s *State) NetSendChainToPeer(pr peer.Peer) error {
	s.evHandler("state: NetSendChainToPeer: started: %s", pr.Host)
	defer s.evHandler("state: NetSendChainToPeer: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/chain", fmt.Sprintf(baseURL, pr.Host))

	chain := s.db.Chain()
	blockDatas := make([]database.BlockData, len(chain))
	for i, block := range chain {
		blockDatas[i] = database.NewBlockData(block)
	}

	return s.send(http.MethodPost, url, blockDatas, nil)
}

// NetRequestPeerStatus asks a known node for its chain tip and peer list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer[%s]: latest-blknum[%d]: peer-list[%v]", pr.Host, ps.LatestBlockNumber, ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.Tx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var pool []database.Tx
	if err := s.send(http.MethodGet, url, nil, &pool); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(pool))

	return pool, nil
}

// NetRequestPeerChain pulls the peer's entire chain and runs it through
// the longest chain rule. Used when a proposed block reveals the peer is
// ahead of this node.
func (s *State) NetRequestPeerChain(pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerChain: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerChain: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/chain", fmt.Sprintf(baseURL, pr.Host))

	var blockDatas []database.BlockData
	if err := s.send(http.MethodGet, url, nil, &blockDatas); err != nil {
		return err
	}

	s.evHandler("state: NetRequestPeerChain: found blocks[%d]", len(blockDatas))

	blocks := make([]database.Block, len(blockDatas))
	for i, blockData := range blockDatas {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return err
		}
		blocks[i] = block
	}

	return s.ProcessSubmittedChain(blocks)
}

// NetRegisterWithPeer announces this node to the specified peer so gossip
// flows both ways.
func (s *State) NetRegisterWithPeer(pr peer.Peer) error {
	s.evHandler("state: NetRegisterWithPeer: started: %s", pr.Host)
	defer s.evHandler("state: NetRegisterWithPeer: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))

	reg := struct {
		Host string `json:"host"`
	}{
		Host: s.host,
	}

	return s.send(http.MethodPost, url, reg, nil)
}

// =============================================================================

// send is a helper method to send an HTTP request to a node. The sending
// host rides along in a header so the receiver knows who to talk back to.
func (s *State) send(method string, url string, dataSend any, dataRecv any) error {
	var req *http.Request

	switch {
	case dataSend != nil:
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err != nil {
			return err
		}

	default:
		var err error
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return err
		}
	}

	req.Header.Set("X-Node-Host", s.host)

	var client http.Client
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
