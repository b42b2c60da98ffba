package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPollardFromRootsMatchesForest(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := make([]Hash, 5)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(leaves))

	pol := FromRoots(f.Roots(), f.LeafCount())
	require.Equal(t, f.Roots(), pol.Roots())
	require.Equal(t, f.LeafCount(), pol.LeafCount())
}

func TestPollardAddMatchesForestAcrossRowGrowth(t *testing.T) {
	f := NewForest(NewRAMForestData())
	pol := NewPollard()

	for i := byte(0); i < 13; i++ {
		h := leafHash(i + 1)
		require.NoError(t, f.Add([]Hash{h}))
		require.NoError(t, pol.Add([]Hash{h}))
		require.Equal(t, f.Roots(), pol.Roots())
	}
}

func TestPollardAddRejectsDuplicateLeaf(t *testing.T) {
	pol := NewPollard()
	h := leafHash(1)
	require.NoError(t, pol.Add([]Hash{h}))
	err := pol.Add([]Hash{h})
	require.ErrorIs(t, err, ErrDuplicateLeaf)
}

func TestPollardIngestProofRejectsBadSibling(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := make([]Hash, 6)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(leaves))

	pol := FromRoots(f.Roots(), f.LeafCount())
	targets := []Hash{leaves[1], leaves[4]}
	proof, err := f.Prove(targets)
	require.NoError(t, err)

	tampered := proof
	tampered.Hashes = append([]Hash(nil), proof.Hashes...)
	tampered.Hashes[0] = leafHash(99)

	err = pol.IngestProof(targets, tampered)
	require.ErrorIs(t, err, ErrProofInvalid)
}

func TestPollardModifyMatchesForestAfterIngest(t *testing.T) {
	f := NewForest(NewRAMForestData())
	initial := make([]Hash, 8)
	for i := range initial {
		initial[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(initial))

	deletes := []Hash{initial[0], initial[3], initial[5]}
	pol, err := PollardFromForest(f, deletes)
	require.NoError(t, err)

	adds := []Hash{leafHash(201), leafHash(202)}
	require.NoError(t, f.Modify(adds, deletes))
	require.NoError(t, pol.Modify(adds, deletes))
	require.Equal(t, f.Roots(), pol.Roots())
}

func TestPollardModifyWithoutIngestFailsClosed(t *testing.T) {
	f := NewForest(NewRAMForestData())
	initial := make([]Hash, 4)
	for i := range initial {
		initial[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(initial))

	pol := FromRoots(f.Roots(), f.LeafCount())
	err := pol.Modify(nil, []Hash{initial[0]})
	require.ErrorIs(t, err, ErrLeafNotPresent)
}

func TestPollardProveAfterIngestRoundTrips(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := make([]Hash, 6)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(leaves))

	targets := []Hash{leaves[1], leaves[4]}
	fProof, err := f.Prove(targets)
	require.NoError(t, err)

	pol := FromRoots(f.Roots(), f.LeafCount())
	require.NoError(t, pol.IngestProof(targets, fProof))

	polProof, err := pol.Prove(targets)
	require.NoError(t, err)

	ok, err := VerifyProof(f.Roots(), f.LeafCount(), f.Rows(), targets, polProof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPollardStripUnusedReturnsToRootOnly(t *testing.T) {
	f := NewForest(NewRAMForestData())
	leaves := make([]Hash, 6)
	for i := range leaves {
		leaves[i] = leafHash(byte(i + 1))
	}
	require.NoError(t, f.Add(leaves))

	targets := []Hash{leaves[1], leaves[4]}
	proof, err := f.Prove(targets)
	require.NoError(t, err)

	pol := FromRoots(f.Roots(), f.LeafCount())
	require.NoError(t, pol.IngestProof(targets, proof))
	pol.StripUnused()

	_, err = pol.Prove(targets[:1])
	require.ErrorIs(t, err, ErrLeafNotPresent)
	require.Equal(t, f.Roots(), pol.Roots())
}
