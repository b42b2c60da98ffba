package accumulator

import (
	"encoding/binary"
	"fmt"
)

// checkpoint is the wire framing both forest.bin and pollard.bin share:
// an 8-byte LE leaf count, an 8-byte LE root count, then each root in the
// §4.A node-serialization format. Dump/Restore persist checkpoints, not
// the full node array — the full array lives in whichever ForestData
// backend is already continuously flushed to disk (see internal/snapshot).
func serializeCheckpoint(numLeaves uint64, roots []Hash) []byte {
	out := make([]byte, 16, 16+len(roots)*33)
	binary.LittleEndian.PutUint64(out[0:8], numLeaves)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(roots)))
	for _, r := range roots {
		out = append(out, r.Serialize()...)
	}
	return out
}

func deserializeCheckpoint(b []byte) (numLeaves uint64, roots []Hash, err error) {
	if len(b) < 16 {
		return 0, nil, fmt.Errorf("checkpoint header: %w", ErrCorruptStream)
	}
	numLeaves = binary.LittleEndian.Uint64(b[0:8])
	rootCount := binary.LittleEndian.Uint64(b[8:16])
	b = b[16:]

	roots = make([]Hash, rootCount)
	for i := range roots {
		h, n, err := DeserializeHash(b)
		if err != nil {
			return 0, nil, fmt.Errorf("checkpoint root %d: %w", i, err)
		}
		b = b[n:]
		roots[i] = h
	}
	if len(b) != 0 {
		return 0, nil, fmt.Errorf("checkpoint trailing bytes: %w", ErrCorruptStream)
	}
	return numLeaves, roots, nil
}

// Checkpoint serializes the forest's current leaf count and roots, the
// payload internal/snapshot writes to forest.bin.
func (f *Forest) Checkpoint() []byte {
	return serializeCheckpoint(f.numLeaves, f.Roots())
}

// NewForestFromData reconstructs a Forest header around an already
// populated ForestData backend (one kept continuously in sync on disk,
// not restored from the checkpoint itself), validating that the hashes
// stored at the backend's root positions equal the expected roots. The
// leaves are not rehashed, so a backend whose interior nodes disagree with
// its leaves below matching roots is not detected.
func NewForestFromData(data ForestData, numLeaves uint64, expectedRoots []Hash) (*Forest, error) {
	f := &Forest{rows: treeRows(numLeaves), numLeaves: numLeaves, data: data, positionMap: make(map[Hash]uint64)}
	for pos := uint64(0); pos < numLeaves; pos++ {
		h := data.Read(pos)
		if h.IsValue() {
			f.positionMap[h] = pos
		}
	}
	got := f.Roots()
	if len(got) != len(expectedRoots) {
		return nil, fmt.Errorf("checkpoint has %d roots, data implies %d: %w", len(expectedRoots), len(got), ErrCorruptStream)
	}
	for i := range got {
		if got[i] != expectedRoots[i] {
			return nil, fmt.Errorf("checkpoint root %d mismatch: %w", i, ErrCorruptStream)
		}
	}
	return f, nil
}

// DeserializeForestCheckpoint parses a forest.bin payload without
// attaching it to any ForestData backend, for callers (like a status
// endpoint) that only need the leaf count and roots.
func DeserializeForestCheckpoint(b []byte) (numLeaves uint64, roots []Hash, err error) {
	return deserializeCheckpoint(b)
}

// Serialize writes the pollard's stripped form: the same leaf-count/
// root-count/roots framing as a forest checkpoint, since a pollard never
// carries more than its roots (plus whatever branches are currently
// ingested, which Serialize intentionally drops).
func (p *Pollard) Serialize() []byte {
	return serializeCheckpoint(p.numLeaves, p.Roots())
}

// DeserializePollard rebuilds a stripped pollard from Serialize's output.
func DeserializePollard(b []byte) (*Pollard, error) {
	numLeaves, roots, err := deserializeCheckpoint(b)
	if err != nil {
		return nil, err
	}
	return FromRoots(roots, numLeaves), nil
}
