package accumulator

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// leafTag is the BIP-340 style domain-separation tag used when fingerprinting
// a UTXO commitment into a leaf hash.
var leafTag = []byte("utreexo/leaf/v1")

// UTXOCommitment is the set of fields the accumulator commits to for a single
// unspent output, matching the five columns the bulk builder and the
// real-time updater both populate.
type UTXOCommitment struct {
	BlockHash        chainhash.Hash
	Txid             chainhash.Hash
	Vout             uint32
	HeaderCode       uint32
	SerializedOutput []byte
}

// Fingerprint computes the leaf hash committed to the forest/pollard for this
// UTXO. It tagged-hashes the concatenation of the five fields in field order,
// using chainhash.TaggedHash for the real BIP-340 domain-separated
// construction rather than a hand-rolled double-sha wrapper.
func (c UTXOCommitment) Fingerprint() Hash {
	var vout [4]byte
	binary.LittleEndian.PutUint32(vout[:], c.Vout)
	var headerCode [4]byte
	binary.LittleEndian.PutUint32(headerCode[:], c.HeaderCode)

	sum := chainhash.TaggedHash(
		leafTag,
		c.BlockHash[:],
		c.Txid[:],
		vout[:],
		headerCode[:],
		c.SerializedOutput,
	)
	return NewHash([32]byte(*sum))
}
