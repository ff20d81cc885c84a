// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cadenalabs/cadena/business/web/errs"
	"github.com/cadenalabs/cadena/foundation/blockchain/database"
	"github.com/cadenalabs/cadena/foundation/blockchain/state"
	"github.com/cadenalabs/cadena/foundation/events"
	"github.com/cadenalabs/cadena/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	status := nodeStatus{
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		ChainHeight:       h.State.ChainHeight(),
		UTXOCount:         len(h.State.UTXOs()),
		MempoolLength:     h.State.MempoolLength(),
		MiningEnabled:     h.State.IsMiningAllowed(),
		KnownPeers:        h.State.KnownPeers(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
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

// BlockByNumber returns the block at the specified height. The parameter
// "latest" returns the chain tip.
func (h Handlers) BlockByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	numberStr := web.Param(r, "number")

	var block database.Block
	switch numberStr {
	case "latest", "":
		block = h.State.LatestBlock()

	default:
		number, err := strconv.ParseUint(numberStr, 10, 64)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		block, err = h.State.BlockByNumber(number)
		if err != nil {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// UTXOs returns the unspent output set, optionally restricted to a single
// address.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	var utxos []database.UTXO
	switch address {
	case "":
		utxos = h.State.UTXOs()
	default:
		utxos = h.State.UTXOsByAddress(database.Address(address))
	}

	return web.Respond(ctx, w, utxos, http.StatusOK)
}

// Balance sums the unspent outputs held by the specified address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := database.Address(web.Param(r, "address"))
	if address == "" {
		return errs.NewTrusted(errors.New("address missing"), http.StatusBadRequest)
	}

	bal := accountBalance{
		Address: address,
		Balance: h.State.BalanceOf(address),
		UTXOs:   len(h.State.UTXOsByAddress(address)),
	}

	return web.Respond(ctx, w, bal, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.Mempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// FindTx looks up a transaction by id in the chain and in the mempool.
func (h Handlers) FindTx(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txID := web.Param(r, "id")

	if tx, blockNum, err := h.State.FindTx(txID); err == nil {
		result := txResult{
			Status:      "confirmed",
			BlockNumber: blockNum,
			Tx:          tx,
		}
		return web.Respond(ctx, w, result, http.StatusOK)
	}

	for _, tx := range h.State.Mempool() {
		if tx.ID == txID {
			result := txResult{
				Status: "pending",
				Tx:     tx,
			}
			return web.Respond(ctx, w, result, http.StatusOK)
		}
	}

	return errs.NewTrusted(errors.New("transaction not found"), http.StatusNotFound)
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tx.ID, "from", tx.From())
	if err := h.State.SubmitWalletTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "transaction added to mempool",
		TxID:   tx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// MiningStatus reports whether mining is currently enabled.
func (h Handlers) MiningStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := miningStatus{
		Enabled: h.State.IsMiningAllowed(),
		Pending: h.State.MempoolLength(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StartMining turns the mining operation back on.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.EnableMining()

	resp := miningStatus{
		Enabled: true,
		Pending: h.State.MempoolLength(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StopMining pauses the mining operation. Transactions continue to be
// accepted into the mempool.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.DisableMining()

	resp := miningStatus{
		Enabled: false,
		Pending: h.State.MempoolLength(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
