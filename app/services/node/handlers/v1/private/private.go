// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"

	"github.com/cadenalabs/cadena/business/web/errs"
	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/peer"
	"github.com/cadenalabs/cadena/foundation/blockchain/state"
	"github.com/cadenalabs/cadena/foundation/validate"
	"github.com/cadenalabs/cadena/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	status := peer.PeerStatus{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		KnownPeers:        h.State.KnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Peers returns the list of peers known by this node.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.KnownPeers(), http.StatusOK)
}

// RegisterPeer adds a new node to this node's peer list.
func (h Handlers) RegisterPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var reg registerPeer
	if err := web.Decode(r, &reg); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(reg); err != nil {
		return err
	}

	if h.State.AddKnownPeer(peer.New(reg.Host)) {
		h.Log.Infow("add peer", "traceid", v.TraceID, "host", reg.Host)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "peer registered",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns the full chain from genesis to tip.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	chain := h.State.Chain()

	blockDatas := make([]database.BlockData, len(chain))
	for i, block := range chain {
		blockDatas[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockDatas, http.StatusOK)
}

// SubmitChain takes an entire candidate chain from a peer and applies the
// longest chain rule.
func (h Handlers) SubmitChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var blockDatas []database.BlockData
	if err := web.Decode(r, &blockDatas); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks := make([]database.Block, len(blockDatas))
	for i, blockData := range blockDatas {
		block, err := database.ToBlock(blockData)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		blocks[i] = block
	}

	if err := h.State.ProcessSubmittedChain(blocks); err != nil {
		if errors.Is(err, database.ErrShorterOrEqualChain) {
			return errs.NewTrusted(err, http.StatusNotAcceptable)
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "chain accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block mined by a peer, validates it and if that
// passes, adds the block to the local chain.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Convert the block data into a block. This action will create a merkle
	// tree for the set of transactions required for blockchain operations.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.ProcessProposedBlock(block); err != nil {
		host := r.Header.Get("X-Node-Host")

		// The sender is ahead of us. Pull their whole chain and let the
		// longest chain rule decide.
		if errors.Is(err, database.ErrChainLinkageMismatch) && host != "" {
			go func() {
				if err := h.State.NetRequestPeerChain(peer.New(host)); err != nil {
					h.Log.Errorw("propose block", "ERROR", err)
				}
			}()
		}

		// The sender is behind us. Push our chain so they can catch up.
		if errors.Is(err, state.ErrStaleBlock) && host != "" && block.Header.Number < h.State.LatestBlock().Header.Number {
			go func() {
				if err := h.State.NetSendChainToPeer(peer.New(host)); err != nil {
					h.Log.Errorw("propose block", "ERROR", err)
				}
			}()
		}

		return errs.NewTrusted(errors.New("block not accepted"), http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.Mempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// SubmitNodeTransaction adds a transaction shared by a peer node to
// the mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add node tran", "traceid", v.TraceID, "tx", tx.ID, "from", tx.From())
	if err := h.State.SubmitNodeTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
