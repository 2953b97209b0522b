// Package merkle implements the canonical Merkle tree of the storage
// network: Keccak-256 leaves, order-sensitive bottom-up pairing, and
// inclusion proofs whose binary format must be bit-exact across
// implementations.
package merkle

import (
	"golang.org/x/xerrors"
)

// LeafNode is a node in the tree. Interior nodes own their children; the
// parent pointer is only used to walk proof paths upward.
type LeafNode struct {
	Hash Hash

	parent *LeafNode
	left   *LeafNode
	right  *LeafNode
}

// NewLeaf wraps a pre-computed digest, e.g. the known hash of an all-zero
// padding chunk.
func NewLeaf(hash Hash) *LeafNode {
	return &LeafNode{Hash: hash}
}

// LeafFromContent hashes raw content into a leaf.
func LeafFromContent(content []byte) *LeafNode {
	return &LeafNode{Hash: Keccak256(content)}
}

func joinLeaves(left, right *LeafNode) *LeafNode {
	node := &LeafNode{
		Hash:  combineHashes(left.Hash, right.Hash),
		left:  left,
		right: right,
	}
	left.parent = node
	right.parent = node
	return node
}

// isLeftSide reports whether the node is its parent's left child. The
// comparison is by identity, not by hash value: duplicate hashes (zero
// padding chunks) are common in one tree.
func (n *LeafNode) isLeftSide() bool {
	return n.parent != nil && n.parent.left == n
}

// Tree is an append-then-build Merkle tree. Leaves keep insertion order;
// Build is deterministic for a given ordered leaf sequence.
type Tree struct {
	root   *LeafNode
	leaves []*LeafNode
}

func NewTree() *Tree {
	return &Tree{}
}

// AddLeaf appends a leaf hashed from content.
func (t *Tree) AddLeaf(content []byte) {
	t.leaves = append(t.leaves, LeafFromContent(content))
}

// AddLeafByHash appends a pre-hashed leaf.
func (t *Tree) AddLeafByHash(hash Hash) {
	t.leaves = append(t.leaves, NewLeaf(hash))
}

func (t *Tree) NumLeaves() int {
	return len(t.leaves)
}

func (t *Tree) Root() *LeafNode {
	return t.root
}

// RootHash returns the root digest. Zero until Build has been called.
func (t *Tree) RootHash() Hash {
	if t.root == nil {
		return Hash{}
	}
	return t.root.Hash
}

// Build constructs the tree bottom-up and returns the receiver, or nil when
// there are no leaves.
//
// Pairing is strictly left-to-right on a queue: each level pairs the first
// two remaining entries in order, and an odd trailing entry is moved to the
// back of the queue unpaired. This is not a balanced recursive split; pairing
// any other way produces a different root for the same leaves and breaks
// interoperability with the rest of the network.
func (t *Tree) Build() *Tree {
	numLeaves := len(t.leaves)
	if numLeaves == 0 {
		return nil
	}

	var queue []*LeafNode
	for i := 0; i < numLeaves; i += 2 {
		if i == numLeaves-1 {
			queue = append(queue, t.leaves[i])
			continue
		}
		queue = append(queue, joinLeaves(t.leaves[i], t.leaves[i+1]))
	}

	for {
		numNodes := len(queue)
		if numNodes <= 1 {
			break
		}
		for i := 0; i < numNodes/2; i++ {
			queue = append(queue[2:], joinLeaves(queue[0], queue[1]))
		}
		if numNodes%2 == 1 {
			queue = append(queue[1:], queue[0])
		}
	}

	t.root = queue[0]
	return t
}

// ProofAt generates the inclusion proof for the leaf at index i. The tree
// must have been built.
func (t *Tree) ProofAt(i int) (Proof, error) {
	if i < 0 || i >= len(t.leaves) {
		return Proof{}, ErrIndexOutOfRange
	}
	if t.root == nil {
		return Proof{}, xerrors.New("merkle tree not built")
	}

	if len(t.leaves) == 1 {
		return Proof{Lemma: []Hash{t.RootHash()}}, nil
	}

	var proof Proof
	proof.Lemma = append(proof.Lemma, t.leaves[i].Hash)

	for current := t.leaves[i]; current != t.root; current = current.parent {
		if current.isLeftSide() {
			proof.Lemma = append(proof.Lemma, current.parent.right.Hash)
			proof.Path = append(proof.Path, true)
		} else {
			proof.Lemma = append(proof.Lemma, current.parent.left.Hash)
			proof.Path = append(proof.Path, false)
		}
	}

	proof.Lemma = append(proof.Lemma, t.RootHash())
	return proof, nil
}
