// Package extractor turns columnar UTXO rows into accumulator leaves,
// batching the scan the way the bridge node batches disk-offset work
// rather than fingerprinting one row at a time.
package extractor

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/utreexod/accumulatord/internal/accumulator"
)

// Row is one decoded UTXO set entry. The actual Parquet decoding that
// produces Rows lives outside this package (external per the service
// contract); this package only owns the batching and fingerprinting.
type Row struct {
	BlockHash  chainhash.Hash
	Txid       chainhash.Hash
	Vout       uint32
	HeaderCode uint32
	Output     []byte
	Coinbase   bool
}

// RowSource streams decoded rows in order. Next returns ErrEmptySource
// (possibly wrapped) once exhausted; implementations are expected to read ahead internally so
// Next rarely blocks on disk I/O.
type RowSource interface {
	Next() (Row, error)
}

// Config controls how rows are turned into leaves.
type Config struct {
	// BatchSize is how many rows are buffered between yields.
	BatchSize int
	// ZeroBlockHash, when true, commits the zero hash instead of each
	// row's real block hash. The bulk builder runs with this true so its
	// leaves match a from-scratch chain scan that hasn't resolved block
	// heights yet; internal/updater always uses the real hash, since it
	// processes one connected block at a time and always knows it.
	ZeroBlockHash bool
	// SkipCoinbase drops coinbase rows from the batch entirely, matching
	// the bulk build's default treatment of immature coinbase outputs.
	SkipCoinbase bool
}

// DefaultConfig matches the bulk-build path's historical defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 4096, ZeroBlockHash: true, SkipCoinbase: true}
}

// Extractor reads batches of Rows from a RowSource and turns them into
// accumulator leaf hashes.
type Extractor struct {
	cfg    Config
	source RowSource
}

// New returns an Extractor reading from source under cfg.
func New(source RowSource, cfg Config) *Extractor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Extractor{cfg: cfg, source: source}
}

// NextBatch reads up to BatchSize rows and returns their leaf fingerprints.
// It returns a short (possibly empty) batch and the source's error,
// ErrEmptySource for a normally exhausted source, once Next fails.
func (e *Extractor) NextBatch() ([]accumulator.Hash, error) {
	leaves := make([]accumulator.Hash, 0, e.cfg.BatchSize)
	for len(leaves) < e.cfg.BatchSize {
		row, err := e.source.Next()
		if err != nil {
			return leaves, err
		}
		if row.Coinbase && e.cfg.SkipCoinbase {
			continue
		}
		leaves = append(leaves, e.fingerprint(row))
	}
	return leaves, nil
}

func (e *Extractor) fingerprint(row Row) accumulator.Hash {
	commitment := accumulator.UTXOCommitment{
		Txid:             row.Txid,
		Vout:             row.Vout,
		HeaderCode:       row.HeaderCode,
		SerializedOutput: row.Output,
	}
	if !e.cfg.ZeroBlockHash {
		commitment.BlockHash = row.BlockHash
	}
	return commitment.Fingerprint()
}

// ErrEmptySource is returned by sources with nothing left to decode; kept
// here so callers can test for exhaustion without importing io directly.
var ErrEmptySource = fmt.Errorf("extractor: row source exhausted")
