package accumulator

import "errors"

// Sentinel errors returned by the accumulator package. Callers should use
// errors.Is against these rather than comparing strings.
var (
	// ErrCorruptStream is returned when a serialized forest, pollard, or
	// proof cannot be parsed.
	ErrCorruptStream = errors.New("accumulator: corrupt stream")

	// ErrLeafNotPresent is returned when a delete or proof targets a leaf
	// hash that is not currently in the accumulator.
	ErrLeafNotPresent = errors.New("accumulator: leaf not present")

	// ErrProofInvalid is returned by Verify when a proof's computed roots
	// do not match the accumulator's roots.
	ErrProofInvalid = errors.New("accumulator: proof invalid")

	// ErrPositionOutOfRange names a position beyond the addressable space
	// of a row count. No function in this package returns it: the
	// position-algebra helpers are total and callers bound positions with
	// inForest.
	ErrPositionOutOfRange = errors.New("accumulator: position out of range")

	// ErrDuplicateLeaf is returned when Add is given a leaf hash already
	// present in the positionMap index.
	ErrDuplicateLeaf = errors.New("accumulator: duplicate leaf")
)
