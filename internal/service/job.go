package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/utreexod/accumulatord/internal/accumulator"
	"github.com/utreexod/accumulatord/internal/extractor"
	"github.com/utreexod/accumulatord/internal/updater"
)

// DefaultRunner is the production Runner: it drives a bulk extractor
// batch-by-batch and an incremental updater block-by-block against one
// shared forest, checking ctx at every batch/block boundary the way the
// cooperative-cancellation checkpoints require.
type DefaultRunner struct {
	Forest  *accumulator.Forest
	Updater *updater.Updater
	Client  updater.ChainClient

	// OpenParquet turns a build command's path into a row source; actual
	// Parquet decoding is an external collaborator (see internal/extractor).
	OpenParquet     func(path string) (extractor.RowSource, error)
	ExtractorConfig extractor.Config

	// Mu is the same lock Service.AccessLock() hands out: the Building/
	// Updating | Dump transition lets a Dump run while this runner keeps
	// mutating the forest, so every individual mutation below takes the
	// write side for just that call, and Dump takes the read side around
	// its checkpoint read. Nil is only safe when nothing else can observe
	// the forest concurrently (tests with a private forest).
	Mu *sync.RWMutex

	// Height is the last block height this runner has applied. It is only
	// read or written by the single active job goroutine, except for the
	// initial seed from a restored snapshot's block-hash count before any
	// job has started.
	Height int64
}

func (r *DefaultRunner) lock() {
	if r.Mu != nil {
		r.Mu.Lock()
	}
}

func (r *DefaultRunner) unlock() {
	if r.Mu != nil {
		r.Mu.Unlock()
	}
}

// RunBuild satisfies Runner: it reads batches from the opened parquet
// source until exhausted or ctx is cancelled, adding each batch's leaves
// to the forest. Rows at or before resumeFrom are skipped rather than
// re-added, so a Build resumed after a Pause doesn't duplicate leaves.
func (r *DefaultRunner) RunBuild(ctx context.Context, parquetPath string, resumeFrom uint64) error {
	src, err := r.OpenParquet(parquetPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", parquetPath, err)
	}
	ex := extractor.New(src, r.ExtractorConfig)

	var processed uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, batchErr := ex.NextBatch()
		if len(batch) > 0 {
			add := batch
			if processed < resumeFrom {
				skip := resumeFrom - processed
				if skip > uint64(len(batch)) {
					skip = uint64(len(batch))
				}
				add = batch[skip:]
			}
			if len(add) > 0 {
				r.lock()
				addErr := r.Forest.Add(add)
				r.unlock()
				if addErr != nil {
					return fmt.Errorf("add batch at row %d: %w", processed, addErr)
				}
			}
			processed += uint64(len(batch))
		}
		if batchErr != nil {
			if errors.Is(batchErr, extractor.ErrEmptySource) {
				return nil
			}
			return fmt.Errorf("read batch at row %d: %w", processed, batchErr)
		}
	}
}

// RunUpdate satisfies Runner: it walks from the runner's last-applied
// height up to targetHeight one block at a time, checking ctx between
// blocks.
func (r *DefaultRunner) RunUpdate(ctx context.Context, targetHeight int64) error {
	for h := r.Height + 1; h <= targetHeight; h++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hash, err := r.Client.BlockHashByHeight(ctx, h)
		if err != nil {
			return fmt.Errorf("resolve height %d: %w", h, err)
		}
		r.lock()
		advErr := r.Updater.Advance(ctx, hash, h)
		r.unlock()
		if advErr != nil {
			return fmt.Errorf("advance to height %d: %w", h, advErr)
		}
		r.Height = h
	}
	return nil
}
