package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func leafHash(b byte) Hash {
	var raw [32]byte
	raw[0] = b
	return NewHash(raw)
}

func TestForestAddGrowsRowsAsNeeded(t *testing.T) {
	f := NewForest(NewRAMForestData())
	for i := byte(0); i < 9; i++ {
		require.NoError(t, f.Add([]Hash{leafHash(i)}))
	}
	require.Equal(t, uint64(9), f.LeafCount())
	require.GreaterOrEqual(t, f.Rows(), treeRows(9))
}

func TestForestAddRejectsDuplicateLeaf(t *testing.T) {
	f := NewForest(NewRAMForestData())
	h := leafHash(1)
	require.NoError(t, f.Add([]Hash{h}))
	err := f.Add([]Hash{h})
	require.ErrorIs(t, err, ErrDuplicateLeaf)
}

func TestForestRootsPopcountInvariant(t *testing.T) {
	f := NewForest(NewRAMForestData())
	for i := byte(0); i < 13; i++ {
		require.NoError(t, f.Add([]Hash{leafHash(i)}))
		var popcount int
		for n := f.LeafCount(); n != 0; n &= n - 1 {
			popcount++
		}
		require.Len(t, f.Roots(), popcount)
	}
}

func TestForestSingleLeafRootEqualsLeafHash(t *testing.T) {
	f := NewForest(NewRAMForestData())
	h := leafHash(7)
	require.NoError(t, f.Add([]Hash{h}))
	roots := f.Roots()
	require.Len(t, roots, 1)
	require.Equal(t, h, roots[0])
}

func TestForestTwoLeavesRootIsParentHash(t *testing.T) {
	f := NewForest(NewRAMForestData())
	a, b := leafHash(1), leafHash(2)
	require.NoError(t, f.Add([]Hash{a, b}))
	roots := f.Roots()
	require.Len(t, roots, 1)
	require.Equal(t, ParentHash(a, b), roots[0])
}

func TestForestDeleteLeafEmptiesAncestorPath(t *testing.T) {
	f := NewForest(NewRAMForestData())
	a, b := leafHash(1), leafHash(2)
	require.NoError(t, f.Add([]Hash{a, b}))
	require.NoError(t, f.Delete([]Hash{a}))
	roots := f.Roots()
	require.Len(t, roots, 1)
	require.True(t, roots[0].IsEmpty())
}

func TestForestDeleteUnknownLeafErrors(t *testing.T) {
	f := NewForest(NewRAMForestData())
	require.NoError(t, f.Add([]Hash{leafHash(1)}))
	err := f.Delete([]Hash{leafHash(99)})
	require.ErrorIs(t, err, ErrLeafNotPresent)
}

func TestForestAddAfterFullDeleteBecomesNewRoot(t *testing.T) {
	f := NewForest(NewRAMForestData())
	a, b := leafHash(1), leafHash(2)
	require.NoError(t, f.Add([]Hash{a, b}))
	require.NoError(t, f.Delete([]Hash{a, b}))

	c := leafHash(3)
	require.NoError(t, f.Add([]Hash{c}))
	roots := f.Roots()
	require.Len(t, roots, 2)
}

func TestForestProveAndVerifyRoundTrip(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := make([]Hash, 6)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(leaves))

	targets := []Hash{leaves[1], leaves[4]}
	proof, err := f.Prove(targets)
	require.NoError(t, err)

	ok, err := VerifyProof(f.Roots(), f.LeafCount(), f.Rows(), targets, proof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestForestProveUnknownLeafErrors(t *testing.T) {
	f := NewForest(NewRAMForestData())
	require.NoError(t, f.Add([]Hash{leafHash(1)}))
	_, err := f.Prove([]Hash{leafHash(2)})
	require.ErrorIs(t, err, ErrLeafNotPresent)
}

func TestForestCheckpointRoundTrip(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := []Hash{leafHash(1), leafHash(2), leafHash(3)}
	require.NoError(t, f.Add(leaves))

	blob := f.Checkpoint()
	numLeaves, roots, err := DeserializeForestCheckpoint(blob)
	require.NoError(t, err)
	require.Equal(t, f.LeafCount(), numLeaves)
	require.Equal(t, f.Roots(), roots)

	restored, err := NewForestFromData(f.data, numLeaves, roots)
	require.NoError(t, err)

	proof, err := f.Prove(leaves[:1])
	require.NoError(t, err)
	_, err = restored.Prove(leaves[:1])
	require.NoError(t, err)
	ok, err := VerifyProof(restored.Roots(), restored.LeafCount(), restored.Rows(), leaves[:1], proof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewForestFromDataRejectsMismatchedRoots(t *testing.T) {
	f := NewForest(NewRAMForestData())
	require.NoError(t, f.Add([]Hash{leafHash(1), leafHash(2)}))

	_, err := NewForestFromData(f.data, f.numLeaves, []Hash{leafHash(99)})
	require.ErrorIs(t, err, ErrCorruptStream)
}

// TestUpdateKeepsForestPollardParity mirrors the original Rust project's
// verify_update check: a pollard built from a forest's roots, after
// ingesting a proof for a soon-to-be-deleted leaf set, applies the same
// Modify(adds, deletes) the forest applies and lands on identical roots —
// the scenario a pollard-only consumer with no access to the full forest
// relies on to stay in sync block by block.
func TestUpdateKeepsForestPollardParity(t *testing.T) {
	f := NewForest(NewRAMForestData())
	initial := make([]Hash, 8)
	for i := range initial {
		initial[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(initial))

	deletes := []Hash{initial[0], initial[3]}
	pol, err := PollardFromForest(f, deletes)
	require.NoError(t, err)
	require.Equal(t, f.Roots(), pol.Roots())

	adds := []Hash{leafHash(101), leafHash(102)}
	require.NoError(t, f.Modify(adds, deletes))
	require.NoError(t, pol.Modify(adds, deletes))
	require.Equal(t, f.Roots(), pol.Roots())
}
