package accumulator

import "fmt"

// polNode is one node of a pollard tree. Unlike rustreexo's Node (which
// wraps parent/left/right in Rc<RefCell<>>/Weak because multiple owners
// can hold references concurrently), the service's single-writer model
// means plain pointers are enough: only the command loop ever mutates a
// pollard.
type polNode struct {
	hash   Hash
	used   bool
	parent *polNode
	left   *polNode
	right  *polNode
}

func (n *polNode) isLeaf() bool { return n.left == nil && n.right == nil }

// Pollard is the pruned accumulator: it keeps only the roots and whatever
// proof branches have been ingested and not yet stripped, rather than
// every node the way a Forest does. roots is keyed by row (not a plain
// slice) so Add/Delete can replace or drop a single rank in place without
// having to reindex the rest, the same row-keyed shape rootRowsForLeaves
// already describes for Forest.Roots().
type Pollard struct {
	numLeaves uint64
	rows      uint8
	roots     map[uint8]*polNode
	leafPos   map[Hash]uint64
}

// NewPollard returns an empty pollard.
func NewPollard() *Pollard {
	return &Pollard{roots: make(map[uint8]*polNode), leafPos: make(map[Hash]uint64)}
}

// rootRowsForLeaves returns, highest row first, the row of every root a
// forest or pollard with numLeaves leaves has — one per set bit of
// numLeaves. It is the standalone twin of rootPositions usable before a
// Pollard value exists yet, which is what FromRoots needs to pair
// incoming root hashes with the row each belongs to.
func rootRowsForLeaves(numLeaves uint64, rows uint8) []uint8 {
	var out []uint8
	for row := int(rows); row >= 0; row-- {
		r := uint8(row)
		if numLeaves&(uint64(1)<<r) != 0 {
			out = append(out, r)
		}
	}
	return out
}

// FromRoots builds a pollard whose roots are exactly the given hashes,
// with numLeaves leaves behind them. This is how a client bootstraps from
// a dumped Forest's root set without ever seeing the full tree.
func FromRoots(roots []Hash, numLeaves uint64) *Pollard {
	rows := treeRows(numLeaves)
	rowList := rootRowsForLeaves(numLeaves, rows)
	p := &Pollard{
		numLeaves: numLeaves,
		rows:      rows,
		roots:     make(map[uint8]*polNode, len(rowList)),
		leafPos:   make(map[Hash]uint64),
	}
	for i, h := range roots {
		if i >= len(rowList) {
			break
		}
		p.roots[rowList[i]] = &polNode{hash: h}
	}
	return p
}

// LeafCount reports how many leaves the pollard's roots commit to.
func (p *Pollard) LeafCount() uint64 { return p.numLeaves }

// Rows reports the pollard's current row count.
func (p *Pollard) Rows() uint8 { return p.rows }

// Roots returns the pollard's current root hashes, highest row first. It
// always matches the forest it mirrors after an equal sequence of
// Add/Delete/Modify calls, since both walk the identical bit pattern of
// numLeaves through the identical ripple-carry/empty-propagation rules.
func (p *Pollard) Roots() []Hash {
	rowList := p.rootRows()
	out := make([]Hash, len(rowList))
	for i, row := range rowList {
		out[i] = p.roots[row].hash
	}
	return out
}

// rootRows returns, highest row first, the row each of the pollard's
// current roots occupies — the set bits of numLeaves.
func (p *Pollard) rootRows() []uint8 {
	return rootRowsForLeaves(p.numLeaves, p.rows)
}

// IngestProof verifies proof against the pollard's current roots — the
// same recompute-the-parent-chain check VerifyProof performs for a bare
// root set — and only on success attaches the sibling branches, populating
// a pointer path down to each target leaf and marking those leaves used.
// A proof whose sibling hashes don't reconcile to the current roots is
// rejected with ErrProofInvalid before anything is attached.
func (p *Pollard) IngestProof(leafHashes []Hash, proof Proof) error {
	if len(leafHashes) != len(proof.Targets) {
		return fmt.Errorf("%d leaves for %d targets: %w", len(leafHashes), len(proof.Targets), ErrProofInvalid)
	}
	ok, err := VerifyProof(p.Roots(), p.numLeaves, p.rows, leafHashes, proof)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProofInvalid
	}

	known := make(map[uint64]Hash, len(proof.Targets)+len(proof.Hashes))
	for i, t := range proof.Targets {
		known[t] = leafHashes[i]
		p.leafPos[leafHashes[i]] = t
	}
	proofPositions := getProofPositions(proof.Targets, p.numLeaves, p.rows)
	for i, pos := range proofPositions {
		if i >= len(proof.Hashes) {
			break
		}
		known[pos] = proof.Hashes[i]
	}
	// Mark every ancestor of each target so attach descends along the
	// whole path down to it; attach fills their hashes in bottom-up.
	for _, t := range proof.Targets {
		pos := t
		for row := detectRow(t, p.rows); row < p.rows; row++ {
			pos = parentPosition(pos, p.rows)
			if _, ok := known[pos]; !ok {
				known[pos] = EmptyHash()
			}
		}
	}

	for row, root := range p.roots {
		p.attach(root, rootPositionAtRow(row, p.numLeaves, p.rows), row, known)
	}

	for _, t := range proof.Targets {
		if n := p.nodeAt(t); n != nil {
			n.used = true
		}
	}
	return nil
}

// attach recursively materializes nodes below pos (at the given row) for
// every position present in known, wiring parent pointers as it goes.
func (p *Pollard) attach(n *polNode, pos uint64, row uint8, known map[uint64]Hash) {
	if h, ok := known[pos]; ok && n.hash.IsEmpty() {
		n.hash = h
	}
	if row == 0 {
		return
	}
	leftPos, rightPos := childPositions(pos, p.rows)
	if _, ok := known[leftPos]; ok {
		if n.left == nil {
			n.left = &polNode{parent: n}
		}
		p.attach(n.left, leftPos, row-1, known)
	}
	if _, ok := known[rightPos]; ok {
		if n.right == nil {
			n.right = &polNode{parent: n}
		}
		p.attach(n.right, rightPos, row-1, known)
	}
	if n.hash.IsEmpty() && n.left != nil && n.right != nil {
		n.hash = CombineOrEmpty(n.left.hash, n.right.hash)
	}
}

// nodeAt walks from the pollard's roots down to the node currently
// materialized at pos, or nil if that branch hasn't been ingested. pos may
// name a leaf or any interior position: each step compares the leaf-index
// window pos falls in against the current node's own window's midpoint to
// pick a child, generalizing the old leaf-only descend to every row Prove
// needs sibling hashes from.
func (p *Pollard) nodeAt(pos uint64) *polNode {
	targetRow, targetOffset := detectOffset(pos, p.rows)
	targetStart := targetOffset << targetRow

	for row, root := range p.roots {
		if row < targetRow {
			continue
		}
		rootPos := rootPositionAtRow(row, p.numLeaves, p.rows)
		_, rootOffset := detectOffset(rootPos, p.rows)
		rootStart := rootOffset << row
		if targetStart < rootStart || targetStart >= rootStart+(uint64(1)<<row) {
			continue
		}

		n, curRow, curPos, curStart := root, row, rootPos, rootStart
		for curRow > targetRow {
			half := uint64(1) << (curRow - 1)
			leftPos, rightPos := childPositions(curPos, p.rows)
			if targetStart < curStart+half {
				if n.left == nil {
					return nil
				}
				n, curPos = n.left, leftPos
			} else {
				if n.right == nil {
					return nil
				}
				n, curPos = n.right, rightPos
				curStart += half
			}
			curRow--
		}
		return n
	}
	return nil
}

// Add appends leaves to the pollard under the identical ripple-carry
// transition Forest.Add applies: each new leaf combines upward with the
// pollard's own root at every row already occupied — including the same
// empty-root short-circuit, where an existing but fully-deleted root is
// simply replaced rather than combined with — until it lands on a row
// whose bit in the new leaf count was not yet set.
func (p *Pollard) Add(leaves []Hash) error {
	for _, leaf := range leaves {
		if err := p.addOne(leaf); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pollard) addOne(leaf Hash) error {
	if _, exists := p.leafPos[leaf]; exists {
		return fmt.Errorf("%s: %w", leaf, ErrDuplicateLeaf)
	}

	n := p.numLeaves
	p.leafPos[leaf] = n
	carry := &polNode{hash: leaf}

	var row uint8
	for n&(uint64(1)<<row) != 0 {
		if existingRoot := p.roots[row]; existingRoot != nil && !existingRoot.hash.IsEmpty() {
			parent := &polNode{
				hash:  ParentHash(existingRoot.hash, carry.hash),
				left:  existingRoot,
				right: carry,
			}
			existingRoot.parent = parent
			carry.parent = parent
			carry = parent
		}
		delete(p.roots, row)
		row++
	}
	p.roots[row] = carry
	p.numLeaves++
	p.rows = treeRows(p.numLeaves)
	return nil
}

// Delete tombstones leaves (identified by fingerprint) and propagates the
// resulting emptiness up each one's ancestor chain via CombineOrEmpty. It
// only succeeds for leaves whose full sibling path down to a root has
// already been ingested, which IngestProof guarantees for exactly the
// targets of whatever proof it most recently accepted — the contract that
// lets a Modify with that same delete-set succeed right after.
func (p *Pollard) Delete(leaves []Hash) error {
	nodes := make([]*polNode, 0, len(leaves))
	for _, leaf := range leaves {
		pos, ok := p.leafPos[leaf]
		if !ok {
			return fmt.Errorf("%s: %w", leaf, ErrLeafNotPresent)
		}
		n := p.nodeAt(pos)
		if n == nil {
			return fmt.Errorf("%s: %w", leaf, ErrLeafNotPresent)
		}
		nodes = append(nodes, n)
	}

	for _, leaf := range leaves {
		delete(p.leafPos, leaf)
	}
	for _, n := range nodes {
		n.hash = EmptyHash()
	}
	// Each leaf's ancestor chain is rehashed independently; CombineOrEmpty's
	// empty short-circuit makes the final state the same no matter which
	// leaf (or shared ancestor) gets recomputed first or twice.
	for _, n := range nodes {
		for cur := n; cur.parent != nil; cur = cur.parent {
			parent := cur.parent
			if parent.left != nil && parent.right != nil {
				parent.hash = CombineOrEmpty(parent.left.hash, parent.right.hash)
			}
		}
	}
	return nil
}

// Modify applies a batch of deletes followed by a batch of adds, the same
// order Forest.Modify applies them in, so that P.Modify(adds, deletes)
// following an ingested proof for deletes reproduces
// F.Modify(adds, deletes).Roots() exactly.
func (p *Pollard) Modify(adds []Hash, deletes []Hash) error {
	if err := p.Delete(deletes); err != nil {
		return err
	}
	return p.Add(adds)
}

// Prove builds a batch proof for leaves the pollard currently has enough
// ingested structure to cover, the same Proof shape Forest.Prove returns,
// built by walking the pollard's own branches instead of a flat array.
func (p *Pollard) Prove(leaves []Hash) (Proof, error) {
	targets := make([]uint64, len(leaves))
	for i, leaf := range leaves {
		pos, ok := p.leafPos[leaf]
		if !ok {
			return Proof{}, fmt.Errorf("%s: %w", leaf, ErrLeafNotPresent)
		}
		targets[i] = pos
	}

	proofPositions := getProofPositions(targets, p.numLeaves, p.rows)
	hashes := make([]Hash, len(proofPositions))
	for i, pos := range proofPositions {
		n := p.nodeAt(pos)
		if n == nil {
			return Proof{}, fmt.Errorf("position %d: %w", pos, ErrLeafNotPresent)
		}
		hashes[i] = n.hash
	}
	return Proof{Targets: targets, Hashes: hashes}, nil
}

// StripUnused walks down from every root and drops the children of each
// node that is not marked used. Only IngestProof sets the flag, and only on
// its target leaves, so the roots themselves are never marked and a strip
// leaves the pollard holding only bare root hashes again — the shape a
// fresh FromRoots pollard starts in.
func (p *Pollard) StripUnused() {
	for _, root := range p.roots {
		stripNode(root)
	}
}

func stripNode(n *polNode) {
	if n == nil {
		return
	}
	if !n.used {
		n.left = nil
		n.right = nil
		return
	}
	stripNode(n.left)
	stripNode(n.right)
	n.used = false
}

// RestoreUsedFlag clears every used flag without discarding branches,
// letting a pollard be reused across multiple, independent verify passes
// over the same ingested proof set.
func (p *Pollard) RestoreUsedFlag() {
	for _, root := range p.roots {
		clearUsed(root)
	}
}

func clearUsed(n *polNode) {
	if n == nil {
		return
	}
	n.used = false
	clearUsed(n.left)
	clearUsed(n.right)
}

// Verify checks proof for leafHashes against the pollard's current roots
// and leaf count via VerifyProof; it neither reads nor mutates the
// pollard's ingested branches.
func (p *Pollard) Verify(leafHashes []Hash, proof Proof) (bool, error) {
	return VerifyProof(p.Roots(), p.numLeaves, p.rows, leafHashes, proof)
}
