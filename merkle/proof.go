package merkle

import (
	"math/bits"

	"golang.org/x/xerrors"
)

// Proof validation failures, in the order the checks run.
var (
	ErrWrongFormat       = xerrors.New("invalid merkle proof format")
	ErrContentMismatch   = xerrors.New("merkle proof content mismatch")
	ErrRootMismatch      = xerrors.New("merkle proof root mismatch")
	ErrPositionMismatch  = xerrors.New("merkle proof position mismatch")
	ErrValidationFailure = xerrors.New("failed to validate merkle proof")

	ErrIndexOutOfRange = xerrors.New("leaf index out of range")
)

// Proof is an inclusion proof. Lemma holds, in order, the target leaf hash,
// one sibling hash per level bottom-up, and the root hash. Path[i] is true
// when the sibling at level i is the tree's right child (the proven node is
// on the left).
//
// A single-leaf tree is the degenerate case: Lemma holds just the root and
// Path is empty.
type Proof struct {
	Lemma []Hash `json:"lemma"`
	Path  []bool `json:"path"`
}

// ValidateFormat checks the lemma/path length invariant.
func (p *Proof) ValidateFormat() error {
	numSiblings := len(p.Path)
	if numSiblings == 0 {
		if len(p.Lemma) != 1 {
			return ErrWrongFormat
		}
		return nil
	}
	if numSiblings+2 != len(p.Lemma) {
		return ErrWrongFormat
	}
	return nil
}

// Validate checks the proof against raw leaf content.
func (p *Proof) Validate(root Hash, content []byte, position, numLeaves uint64) error {
	return p.ValidateHash(root, Keccak256(content), position, numLeaves)
}

// ValidateHash checks the proof against a pre-hashed leaf: format, then
// content hash, then claimed root, then position reconstructed from the
// path, then the hash chain itself.
func (p *Proof) ValidateHash(root, contentHash Hash, position, numLeaves uint64) error {
	if err := p.ValidateFormat(); err != nil {
		return err
	}
	if contentHash != p.Lemma[0] {
		return ErrContentMismatch
	}
	if len(p.Lemma) > 1 && root != p.Lemma[len(p.Lemma)-1] {
		return ErrRootMismatch
	}
	if p.calculateProofPosition(numLeaves) != position {
		return ErrPositionMismatch
	}
	if !p.validateRoot() {
		return ErrValidationFailure
	}
	return nil
}

// validateRoot re-derives the root from the leaf hash and siblings.
func (p *Proof) validateRoot() bool {
	hash := p.Lemma[0]
	for i, isLeft := range p.Path {
		if isLeft {
			hash = combineHashes(hash, p.Lemma[i+1])
		} else {
			hash = combineHashes(p.Lemma[i+1], hash)
		}
	}
	return hash == p.Lemma[len(p.Lemma)-1]
}

// calculateProofPosition reconstructs the leaf index from the path alone,
// walking top-down (path end first) and splitting the claimed leaf count at
// the largest power-of-two boundary at each level.
func (p *Proof) calculateProofPosition(numLeaves uint64) uint64 {
	var position uint64
	for i := len(p.Path) - 1; i >= 0; i-- {
		leftSideLeaves := nextPow2(numLeaves) / 2
		if p.Path[i] {
			numLeaves = leftSideLeaves
		} else {
			position += leftSideLeaves
			numLeaves -= leftSideLeaves
		}
	}
	return position
}

// nextPow2 rounds up to a power of two; identity on powers of two.
func nextPow2(n uint64) uint64 {
	if n <= 1 {
		return n
	}
	return 1 << bits.Len64(n-1)
}
