package updater

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/utreexod/accumulatord/internal/accumulator"
)

type fakeClient struct {
	blocks       map[chainhash.Hash]*wire.MsgBlock
	spentOutputs map[wire.OutPoint]SpentOutput
}

func (f *fakeClient) BestBlockHash(context.Context) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func (f *fakeClient) BlockByHash(_ context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	return f.blocks[hash], nil
}

func (f *fakeClient) BlockHashByHeight(context.Context, int64) (chainhash.Hash, error) {
	return chainhash.Hash{}, nil
}

func (f *fakeClient) SpentOutput(_ context.Context, op wire.OutPoint) (SpentOutput, error) {
	return f.spentOutputs[op], nil
}

func coinbaseTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0xffffffff}})
	tx.AddTxOut(&wire.TxOut{Value: 5000000000, PkScript: []byte{0x51}})
	return tx
}

func TestAdvanceAddsOutputsAndDeletesSpentInputs(t *testing.T) {
	prevTx := wire.NewMsgTx(wire.TxVersion)
	prevOut := &wire.TxOut{Value: 1000, PkScript: []byte{0x51}}
	prevTx.AddTxOut(prevOut)
	prevOutpoint := wire.OutPoint{Hash: prevTx.TxHash(), Index: 0}

	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(&wire.TxIn{PreviousOutPoint: prevOutpoint})
	spendTx.AddTxOut(&wire.TxOut{Value: 900, PkScript: []byte{0x51}})

	block := wire.NewMsgBlock(&wire.BlockHeader{})
	block.AddTransaction(coinbaseTx())
	block.AddTransaction(spendTx)

	blockHash := block.BlockHash()
	const prevBlockHeight = 41
	const spendBlockHeight = 100
	prevBlockHash := chainhash.Hash{0xaa}

	spentCommitment := accumulator.UTXOCommitment{
		BlockHash:        prevBlockHash,
		Txid:             prevOutpoint.Hash,
		Vout:             prevOutpoint.Index,
		HeaderCode:       headerCodeFor(prevBlockHeight, false),
		SerializedOutput: serializeTxOut(prevOut),
	}

	client := &fakeClient{
		blocks: map[chainhash.Hash]*wire.MsgBlock{blockHash: block},
		spentOutputs: map[wire.OutPoint]SpentOutput{
			prevOutpoint: {
				BlockHash:        prevBlockHash,
				HeaderCode:       headerCodeFor(prevBlockHeight, false),
				SerializedOutput: serializeTxOut(prevOut),
			},
		},
	}

	f := accumulator.NewForest(accumulator.NewRAMForestData())
	require.NoError(t, f.Add([]accumulator.Hash{spentCommitment.Fingerprint()}))

	u := New(client, f)
	require.NoError(t, u.Advance(context.Background(), blockHash, spendBlockHeight))

	require.Equal(t, uint64(3), f.LeafCount())
}
