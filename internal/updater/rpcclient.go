package updater

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// RPCConfig carries the connection details for a bitcoind-compatible JSON-RPC
// endpoint, the same fields btcd's own rpcclient.ConnConfig exposes.
type RPCConfig struct {
	Host         string
	User         string
	Pass         string
	DisableTLS   bool
	HTTPPostMode bool
}

// RPCClient implements ChainClient against a real node over JSON-RPC.
type RPCClient struct {
	conn *rpcclient.Client
}

// DialRPC connects to a bitcoind-compatible node using cfg.
func DialRPC(cfg RPCConfig) (*RPCClient, error) {
	conn, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: cfg.HTTPPostMode,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.Host, err)
	}
	return &RPCClient{conn: conn}, nil
}

// Close shuts down the underlying RPC connection.
func (c *RPCClient) Close() { c.conn.Shutdown() }

func (c *RPCClient) BestBlockHash(_ context.Context) (chainhash.Hash, error) {
	hash, err := c.conn.GetBestBlockHash()
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("getbestblockhash: %w", err)
	}
	return *hash, nil
}

func (c *RPCClient) BlockByHash(_ context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	block, err := c.conn.GetBlock(&hash)
	if err != nil {
		return nil, fmt.Errorf("getblock %s: %w", hash, err)
	}
	return block, nil
}

func (c *RPCClient) BlockHashByHeight(_ context.Context, height int64) (chainhash.Hash, error) {
	hash, err := c.conn.GetBlockHash(height)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("getblockhash %d: %w", height, err)
	}
	return *hash, nil
}

// SpentOutput looks up the output being spent against the node's current
// UTXO set (valid to call while processing the block that spends it, since
// the node's active chainstate still has it unspent at that point) and
// reconstructs the same commitment fields that were hashed in when the
// output was first added: the hash of the block that confirmed it — not
// the block spending it, which the gettxout confirmations count is turned
// into via the node's current tip height — its header code, and its
// serialized amount+script.
func (c *RPCClient) SpentOutput(_ context.Context, outpoint wire.OutPoint) (SpentOutput, error) {
	txOut, err := c.conn.GetTxOut(&outpoint.Hash, outpoint.Index, true)
	if err != nil {
		return SpentOutput{}, fmt.Errorf("gettxout %s:%d: %w", outpoint.Hash, outpoint.Index, err)
	}
	if txOut == nil {
		return SpentOutput{}, fmt.Errorf("gettxout %s:%d: %w", outpoint.Hash, outpoint.Index, errOutputNotFound)
	}

	tipHeight, err := c.conn.GetBlockCount()
	if err != nil {
		return SpentOutput{}, fmt.Errorf("getblockcount: %w", err)
	}
	confirmingHeight := tipHeight - txOut.Confirmations + 1
	confirmingHash, err := c.conn.GetBlockHash(confirmingHeight)
	if err != nil {
		return SpentOutput{}, fmt.Errorf("getblockhash %d: %w", confirmingHeight, err)
	}

	script, err := hex.DecodeString(txOut.ScriptPubKey.Hex)
	if err != nil {
		return SpentOutput{}, fmt.Errorf("decode scriptPubKey for %s:%d: %w", outpoint.Hash, outpoint.Index, err)
	}
	serialized := serializeTxOut(&wire.TxOut{
		Value:    int64(math.Round(txOut.Value * 1e8)),
		PkScript: script,
	})

	return SpentOutput{
		BlockHash:        *confirmingHash,
		HeaderCode:       headerCodeFor(confirmingHeight, txOut.Coinbase),
		SerializedOutput: serialized,
	}, nil
}

var errOutputNotFound = fmt.Errorf("updater: output not found")
