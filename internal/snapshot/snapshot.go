// Package snapshot persists and restores accumulator state to a directory
// of flat files, the way the teacher bridge node dumped its forest: plain
// os.File writes through a temp-file-then-rename so a crash mid-write never
// leaves a half-written file where a reader expects a complete one.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/utreexod/accumulatord/internal/accumulator"
)

const (
	forestFileName      = "forest.bin"
	pollardFileName     = "pollard.bin"
	blockHashesFileName = "block_hashes.bin"
)

// Dump atomically writes a forest checkpoint, a pollard checkpoint (same
// framing), and the chain of block hashes processed so far into dir. The
// full per-node array behind forest isn't part of this payload — it lives
// in whichever ForestData backend is already continuously flushed to
// disk; these files are a compact, fast-to-verify checkpoint of it.
func Dump(dir string, forest *accumulator.Forest, pollard *accumulator.Pollard, blockHashes []chainhash.Hash) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	if err := writeAtomic(filepath.Join(dir, forestFileName), forest.Checkpoint()); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, pollardFileName), pollard.Serialize()); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(dir, blockHashesFileName), serializeBlockHashes(blockHashes)); err != nil {
		return err
	}
	return nil
}

// Restore reads back a snapshot written by Dump. forest.bin and
// pollard.bin are mandatory; data must already hold the per-node array
// matching the checkpoint's leaf count (NewForestFromData cross-checks
// the root hashes stored in it against the checkpoint). block_hashes.bin
// is optional.
func Restore(dir string, data accumulator.ForestData) (*accumulator.Forest, *accumulator.Pollard, []chainhash.Hash, error) {
	forestBytes, err := os.ReadFile(filepath.Join(dir, forestFileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", forestFileName, err)
	}
	numLeaves, roots, err := accumulator.DeserializeForestCheckpoint(forestBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse %s: %w", forestFileName, err)
	}
	forest, err := accumulator.NewForestFromData(data, numLeaves, roots)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rebuild forest from %s: %w", forestFileName, err)
	}

	pollardBytes, err := os.ReadFile(filepath.Join(dir, pollardFileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", pollardFileName, err)
	}
	pollard, err := accumulator.DeserializePollard(pollardBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse %s: %w", pollardFileName, err)
	}

	var blockHashes []chainhash.Hash
	if blockHashBytes, err := os.ReadFile(filepath.Join(dir, blockHashesFileName)); err == nil {
		blockHashes, err = deserializeBlockHashes(blockHashBytes)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse %s: %w", blockHashesFileName, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, nil, fmt.Errorf("read %s: %w", blockHashesFileName, err)
	}

	return forest, pollard, blockHashes, nil
}

// writeAtomic writes b to a sibling temp file and renames it over path,
// so path either has its old complete contents or its new complete
// contents, never a partial write.
func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// serializeBlockHashes writes a flat K*32-byte array, block i's hash at
// offset 32*i, with no length header: the count is recoverable from the
// file's length alone.
func serializeBlockHashes(hashes []chainhash.Hash) []byte {
	out := make([]byte, 0, len(hashes)*chainhash.HashSize)
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

func deserializeBlockHashes(b []byte) ([]chainhash.Hash, error) {
	if len(b)%chainhash.HashSize != 0 {
		return nil, fmt.Errorf("%w: length not a multiple of %d", accumulator.ErrCorruptStream, chainhash.HashSize)
	}
	out := make([]chainhash.Hash, len(b)/chainhash.HashSize)
	for i := range out {
		copy(out[i][:], b[i*chainhash.HashSize:(i+1)*chainhash.HashSize])
	}
	return out, nil
}
