// Package accumulator implements the Utreexo-style hashed forest: the
// node-hash primitive, leaf fingerprinting, position algebra, the full
// forest, and the pruned pollard.
package accumulator

import (
	"crypto/sha256"
	"fmt"
)

// hashKind tags the three states a Hash can be in. The numeric values are
// also the on-disk tag bytes used by the node serialization format (§4.A).
type hashKind uint8

const (
	kindEmpty hashKind = iota
	kindPlaceholder
	kindValue
)

// Hash is a tagged 32-byte accumulator node value. It is comparable and may
// be used directly as a map key; there is no truncated "mini hash" the way
// the teacher bridge node used, since the leaf index must be exact.
type Hash struct {
	kind hashKind
	data [32]byte
}

// EmptyHash marks a deleted leaf or a short-circuited interior node.
func EmptyHash() Hash { return Hash{kind: kindEmpty} }

// PlaceholderHash is a reserved sentinel that is never a collision with a
// real digest. No forest or pollard algorithm in this package produces it;
// it exists so the three-tag node format round-trips.
func PlaceholderHash() Hash { return Hash{kind: kindPlaceholder} }

// NewHash wraps a 32-byte digest as a populated node value.
func NewHash(b [32]byte) Hash { return Hash{kind: kindValue, data: b} }

// IsEmpty reports whether h is the Empty sentinel.
func (h Hash) IsEmpty() bool { return h.kind == kindEmpty }

// IsPlaceholder reports whether h is the Placeholder sentinel.
func (h Hash) IsPlaceholder() bool { return h.kind == kindPlaceholder }

// IsValue reports whether h carries a real 32-byte digest.
func (h Hash) IsValue() bool { return h.kind == kindValue }

// Bytes returns the 32-byte digest. Empty and Placeholder both return the
// zero value; callers that care about the distinction should check
// IsEmpty/IsPlaceholder first.
func (h Hash) Bytes() [32]byte { return h.data }

func (h Hash) String() string {
	switch h.kind {
	case kindEmpty:
		return "<empty>"
	case kindPlaceholder:
		return "<placeholder>"
	default:
		return fmt.Sprintf("%x", h.data)
	}
}

// ParentHash combines two child hashes into their parent's hash:
// sha256(left || right). The combiner never special-cases Empty or
// Placeholder children on its own — callers that need the "an empty child
// makes the parent empty" short-circuit (§4.D Add algorithm, §4.D Delete
// algorithm rehash) apply it explicitly before calling ParentHash.
func ParentHash(left, right Hash) Hash {
	h := sha256.New()
	lb := left.data
	rb := right.data
	h.Write(lb[:])
	h.Write(rb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return NewHash(out)
}

// CombineOrEmpty applies the short-circuit rule used throughout the forest
// and pollard: if either child is Empty the parent is Empty, otherwise the
// parent is ParentHash(left, right).
func CombineOrEmpty(left, right Hash) Hash {
	if left.IsEmpty() || right.IsEmpty() {
		return EmptyHash()
	}
	return ParentHash(left, right)
}

// Serialize writes the 1-byte tag followed by zero or 32 payload bytes.
func (h Hash) Serialize() []byte {
	switch h.kind {
	case kindEmpty:
		return []byte{0}
	case kindPlaceholder:
		return []byte{1}
	default:
		out := make([]byte, 33)
		out[0] = 2
		copy(out[1:], h.data[:])
		return out
	}
}

// DeserializeHash reads a Hash from b, returning the number of bytes
// consumed. It fails with ErrCorruptStream on an unknown tag or short read.
func DeserializeHash(b []byte) (Hash, int, error) {
	if len(b) < 1 {
		return Hash{}, 0, fmt.Errorf("hash tag: %w", ErrCorruptStream)
	}
	switch b[0] {
	case 0:
		return EmptyHash(), 1, nil
	case 1:
		return PlaceholderHash(), 1, nil
	case 2:
		if len(b) < 33 {
			return Hash{}, 0, fmt.Errorf("hash payload: %w", ErrCorruptStream)
		}
		var v [32]byte
		copy(v[:], b[1:33])
		return NewHash(v), 33, nil
	default:
		return Hash{}, 0, fmt.Errorf("hash tag %d: %w", b[0], ErrCorruptStream)
	}
}
