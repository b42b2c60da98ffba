package accumulator

import "fmt"

// Forest is the full, array-addressed accumulator: every node in every
// subtree is materialized in data, not just the roots. This is the
// authoritative side of the system — the bridge/bulk-build path keeps a
// Forest and only ever ships proofs and roots out to pollards.
//
// Forest is not safe for concurrent use; callers serialize access through
// internal/service's single-writer command loop.
type Forest struct {
	rows        uint8
	numLeaves   uint64
	data        ForestData
	positionMap map[Hash]uint64
}

// NewForest returns an empty forest backed by data.
func NewForest(data ForestData) *Forest {
	return &Forest{data: data, positionMap: make(map[Hash]uint64)}
}

// LeafCount reports how many leaves (including tombstoned ones) the forest
// currently addresses.
func (f *Forest) LeafCount() uint64 { return f.numLeaves }

// Rows reports the forest's current row count.
func (f *Forest) Rows() uint8 { return f.rows }

// GetHash returns the hash stored at an arbitrary forest position.
func (f *Forest) GetHash(pos uint64) Hash { return f.data.Read(pos) }

// Roots returns the current root hashes, highest row first, one per set
// bit of LeafCount().
func (f *Forest) Roots() []Hash {
	positions := rootPositions(f.numLeaves, f.rows)
	roots := make([]Hash, len(positions))
	for i, p := range positions {
		roots[i] = f.data.Read(p)
	}
	return roots
}

// reMap grows the forest's addressable row count, relocating every
// already-populated interior position to its new offset. Leaf (row 0)
// positions never move: rowOffset(0, rows) is 0 for every row count.
func (f *Forest) reMap(newRows uint8) {
	oldRows := f.rows
	type relocated struct {
		pos uint64
		h   Hash
	}
	var moved []relocated
	for row := uint8(1); row <= oldRows; row++ {
		oldOffset := rowOffset(row, oldRows)
		newOffset := rowOffset(row, newRows)
		count := uint64(1) << (oldRows - row)
		for i := uint64(0); i < count; i++ {
			h := f.data.Read(oldOffset + i)
			if h.IsEmpty() && oldOffset == newOffset {
				continue
			}
			moved = append(moved, relocated{newOffset + i, h})
		}
	}
	f.data.Resize(numPositions(newRows))
	for _, e := range moved {
		f.data.Write(e.pos, e.h)
	}
	f.rows = newRows
}

// Add appends leaves to the forest, one at a time, carrying combined roots
// upward exactly like a binary counter: each new leaf that completes a pair
// at row r is combined with the existing root at row r and promoted to row
// r+1, continuing until it lands on a row whose bit in the leaf count was
// not yet set.
//
// When the existing root at a row is Empty (every leaf under it has been
// deleted), the combine short-circuits the other way from a normal
// interior rehash: the incoming node simply becomes the root of that rank
// instead of contaminating it to Empty, since an Empty root contributes no
// information to merge with.
func (f *Forest) Add(leaves []Hash) error {
	for _, leaf := range leaves {
		if err := f.addOne(leaf); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) addOne(leaf Hash) error {
	if _, exists := f.positionMap[leaf]; exists {
		return fmt.Errorf("%s: %w", leaf, ErrDuplicateLeaf)
	}
	if f.numLeaves+1 > (uint64(1) << f.rows) {
		f.reMap(f.rows + 1)
	}

	n := f.numLeaves
	pos := n
	f.data.Write(pos, leaf)
	f.positionMap[leaf] = pos

	carry := leaf
	var row uint8
	for n&(uint64(1)<<row) != 0 {
		f.data.Write(rowOffset(row, f.rows)+(n>>row), carry)
		rootPos := rootPositionAtRow(row, n, f.rows)
		existingRoot := f.data.Read(rootPos)
		if !existingRoot.IsEmpty() {
			carry = ParentHash(existingRoot, carry)
		}
		row++
	}
	parentPos := rowOffset(row, f.rows) + (n >> row)
	f.data.Write(parentPos, carry)
	f.numLeaves++
	return nil
}

// Delete removes leaves (identified by their fingerprint) from the forest.
// The tombstoned positions are set Empty and emptiness is propagated
// upward to the roots; the address space itself does not compact, so
// remaining leaves keep their positions. This trades the teacher's
// swap-based promote/rehash optimization for a simpler, still-correct
// rehash-on-delete, documented as a deliberate simplification in the
// repo's design notes.
func (f *Forest) Delete(leaves []Hash) error {
	positions := make([]uint64, 0, len(leaves))
	for _, leaf := range leaves {
		pos, ok := f.positionMap[leaf]
		if !ok {
			return fmt.Errorf("%s: %w", leaf, ErrLeafNotPresent)
		}
		positions = append(positions, pos)
		delete(f.positionMap, leaf)
	}

	for _, pos := range positions {
		f.data.Write(pos, EmptyHash())
	}

	dirty := make(map[uint64]bool)
	for _, pos := range positions {
		if f.rows > 0 {
			dirty[parentPosition(pos, f.rows)] = true
		}
	}
	for row := uint8(1); row <= f.rows && len(dirty) > 0; row++ {
		next := make(map[uint64]bool)
		for p := range dirty {
			if detectRow(p, f.rows) != row {
				continue
			}
			left, right := childPositions(p, f.rows)
			combined := CombineOrEmpty(f.data.Read(left), f.data.Read(right))
			f.data.Write(p, combined)
			if row < f.rows {
				next[parentPosition(p, f.rows)] = true
			}
		}
		dirty = next
	}
	return nil
}

// Modify applies a batch of deletes followed by a batch of adds, matching
// the order every real update (a new block) is applied in: spent inputs
// leave the set before the block's own outputs enter it.
func (f *Forest) Modify(adds []Hash, deletes []Hash) error {
	if err := f.Delete(deletes); err != nil {
		return err
	}
	return f.Add(adds)
}

// Proof is a batch inclusion proof: the positions of the leaves being
// proven (in the order the leaves were passed to Prove, so Targets[i]
// pairs with the i-th leaf hash) plus the sibling hashes a verifier needs to
// recompute every root from those leaves and nothing else.
type Proof struct {
	Targets []uint64
	Hashes  []Hash
}

// Prove builds a batch proof for the given leaves.
func (f *Forest) Prove(leaves []Hash) (Proof, error) {
	targets := make([]uint64, len(leaves))
	for i, leaf := range leaves {
		pos, ok := f.positionMap[leaf]
		if !ok {
			return Proof{}, fmt.Errorf("%s: %w", leaf, ErrLeafNotPresent)
		}
		targets[i] = pos
	}

	proofPositions := getProofPositions(targets, f.numLeaves, f.rows)
	hashes := make([]Hash, len(proofPositions))
	for i, p := range proofPositions {
		hashes[i] = f.data.Read(p)
	}
	return Proof{Targets: targets, Hashes: hashes}, nil
}

// VerifyProof recomputes roots from proof against the known leaf hashes
// (in the same order as proof.Targets) and compares them against roots.
// It does not touch a Forest or Pollard at all, so the same function
// backs both Pollard.Verify and a standalone verifier holding only roots.
// Roots that no target lies under are not reached by the proof and are
// not compared.
func VerifyProof(roots []Hash, numLeaves uint64, rows uint8, leafHashes []Hash, proof Proof) (bool, error) {
	if len(leafHashes) != len(proof.Targets) {
		return false, fmt.Errorf("%d leaves for %d targets: %w", len(leafHashes), len(proof.Targets), ErrProofInvalid)
	}
	known := make(map[uint64]Hash, len(proof.Targets)+len(proof.Hashes))
	for i, p := range proof.Targets {
		known[p] = leafHashes[i]
	}
	proofPositions := getProofPositions(proof.Targets, numLeaves, rows)
	if len(proofPositions) != len(proof.Hashes) {
		return false, fmt.Errorf("%d proof hashes for %d positions: %w", len(proof.Hashes), len(proofPositions), ErrProofInvalid)
	}
	for i, p := range proofPositions {
		known[p] = proof.Hashes[i]
	}

	frontier := make([]uint64, 0, len(known))
	for p := range known {
		frontier = append(frontier, p)
	}
	sortUint64s(frontier)

	for row := uint8(0); row < rows; row++ {
		var next []uint64
		seenParents := make(map[uint64]bool)
		for _, p := range frontier {
			if detectRow(p, rows) != row {
				next = append(next, p)
				continue
			}
			parent := parentPosition(p, rows)
			if seenParents[parent] {
				continue
			}
			seenParents[parent] = true
			sib := sibling(p)
			sibHash, ok := known[sib]
			if !ok {
				sibHash = EmptyHash()
			}
			var combined Hash
			if isLeftSibling(p) {
				combined = CombineOrEmpty(known[p], sibHash)
			} else {
				combined = CombineOrEmpty(sibHash, known[p])
			}
			known[parent] = combined
			next = append(next, parent)
		}
		frontier = next
	}

	rootPos := rootPositions(numLeaves, rows)
	if len(rootPos) != len(roots) {
		return false, fmt.Errorf("%d computed roots for %d given: %w", len(rootPos), len(roots), ErrProofInvalid)
	}
	for i, p := range rootPos {
		got, ok := known[p]
		if !ok {
			continue
		}
		if got != roots[i] {
			return false, ErrProofInvalid
		}
	}
	return true, nil
}
