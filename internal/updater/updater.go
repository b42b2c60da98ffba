// Package updater advances an accumulator forest one connected block at a
// time, using a ChainClient to fetch the block and the UTXOs its inputs
// spend.
package updater

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/utreexod/accumulatord/internal/accumulator"
)

// ChainClient is the chain data dependency the updater needs. A concrete,
// btcd-RPC-backed implementation lives in rpcclient.go; tests use a fake.
type ChainClient interface {
	// BestBlockHash returns the tip the node currently has.
	BestBlockHash(ctx context.Context) (chainhash.Hash, error)
	// BlockByHash fetches a full block.
	BlockByHash(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
	// BlockHashByHeight fetches the hash of the block at height.
	BlockHashByHeight(ctx context.Context, height int64) (chainhash.Hash, error)
	// SpentOutput returns the commitment fields of an output being spent —
	// the hash of the block that confirmed it, its header code, and its
	// serialized form — exactly as they were committed when that output
	// was first added as a leaf. None of this is recoverable from the
	// spending block alone.
	SpentOutput(ctx context.Context, outpoint wire.OutPoint) (SpentOutput, error)
}

// SpentOutput carries the commitment fields of a transaction output at the
// time it is spent, as looked up against the chain's confirmed history.
type SpentOutput struct {
	BlockHash        chainhash.Hash
	HeaderCode       uint32
	SerializedOutput []byte
}

// Updater drives Forest.Modify from real blocks fetched through a
// ChainClient.
type Updater struct {
	client ChainClient
	forest *accumulator.Forest
}

// New returns an Updater that advances forest using client.
func New(client ChainClient, forest *accumulator.Forest) *Updater {
	return &Updater{client: client, forest: forest}
}

// Advance applies the block at hash, confirmed at height, to the forest:
// every non-coinbase input's previous output is deleted, and every output
// in the block is added as a new leaf.
func (u *Updater) Advance(ctx context.Context, hash chainhash.Hash, height int64) error {
	block, err := u.client.BlockByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", hash, err)
	}

	var deletes []accumulator.Hash
	var adds []accumulator.Hash
	for txIdx, tx := range block.Transactions {
		isCoinbase := txIdx == 0
		if !isCoinbase {
			for _, in := range tx.TxIn {
				spent, err := u.client.SpentOutput(ctx, in.PreviousOutPoint)
				if err != nil {
					return fmt.Errorf("spent output %s: %w", in.PreviousOutPoint, err)
				}
				commitment := accumulator.UTXOCommitment{
					BlockHash:        spent.BlockHash,
					Txid:             in.PreviousOutPoint.Hash,
					Vout:             in.PreviousOutPoint.Index,
					HeaderCode:       spent.HeaderCode,
					SerializedOutput: spent.SerializedOutput,
				}
				deletes = append(deletes, commitment.Fingerprint())
			}
		}

		txHash := tx.TxHash()
		for vout, out := range tx.TxOut {
			commitment := accumulator.UTXOCommitment{
				BlockHash:        hash,
				Txid:             txHash,
				Vout:             uint32(vout),
				HeaderCode:       headerCodeFor(height, isCoinbase),
				SerializedOutput: serializeTxOut(out),
			}
			adds = append(adds, commitment.Fingerprint())
		}
	}

	return u.forest.Modify(adds, deletes)
}

// headerCodeFor packs a confirming height and coinbase flag into the single
// header-code commitment field, the classic height<<1|coinbase encoding
// Bitcoin Core uses for its own UTXO set entries. internal/updater and
// ChainClient.SpentOutput must agree on this encoding, since a later delete
// has to reconstruct the exact value committed here from the node's current
// view of the chain rather than from this call's own state.
func headerCodeFor(height int64, coinbase bool) uint32 {
	code := uint32(height) << 1
	if coinbase {
		code |= 1
	}
	return code
}

func serializeTxOut(out *wire.TxOut) []byte {
	buf := make([]byte, 0, 8+len(out.PkScript))
	var amount [8]byte
	for i := 0; i < 8; i++ {
		amount[i] = byte(out.Value >> (8 * i))
	}
	buf = append(buf, amount[:]...)
	buf = append(buf, out.PkScript...)
	return buf
}
