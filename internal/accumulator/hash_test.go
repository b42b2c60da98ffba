package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSerializeRoundTrip(t *testing.T) {
	cases := []Hash{
		EmptyHash(),
		PlaceholderHash(),
		NewHash([32]byte{1, 2, 3}),
	}
	for _, h := range cases {
		got, n, err := DeserializeHash(h.Serialize())
		require.NoError(t, err)
		require.Equal(t, len(h.Serialize()), n)
		require.Equal(t, h, got)
	}
}

func TestCombineOrEmptyShortCircuits(t *testing.T) {
	a := NewHash([32]byte{1})
	require.True(t, CombineOrEmpty(EmptyHash(), a).IsEmpty())
	require.True(t, CombineOrEmpty(a, EmptyHash()).IsEmpty())

	b := NewHash([32]byte{2})
	combined := CombineOrEmpty(a, b)
	require.True(t, combined.IsValue())
	require.Equal(t, ParentHash(a, b), combined)
}

func TestDeserializeHashRejectsBadTag(t *testing.T) {
	_, _, err := DeserializeHash([]byte{9})
	require.ErrorIs(t, err, ErrCorruptStream)
}

func TestDeserializeHashRejectsShortPayload(t *testing.T) {
	_, _, err := DeserializeHash([]byte{2, 1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptStream)
}
