// Package contract defines the boundary to the on-chain flow contract. The
// client builds Submission descriptors; constructing, signing and sending
// the actual transaction is the collaborator's job.
package contract

import (
	"context"
	"math/big"

	"github.com/zgstorage/zgs-client/merkle"
)

// SubmissionNode describes one power-of-two-sized Merkle sub-tree of a
// submitted file: the sub-tree root and its height (log2 of its chunk
// count).
type SubmissionNode struct {
	Root   merkle.Hash `json:"root"`
	Height uint64      `json:"height"`
}

// Submission is the on-chain descriptor of a file, handed to the flow
// contract once per upload.
type Submission struct {
	Length uint64           `json:"length"`
	Tags   []byte           `json:"tags"`
	Nodes  []SubmissionNode `json:"nodes"`
}

// SubmitOption carries caller overrides for the transaction itself. Nil
// fields mean "let the submitter decide".
type SubmitOption struct {
	Fee   *big.Int
	Nonce *big.Int
}

// SubmitReceipt is what the client needs back from a mined submission: the
// transaction hash and the sequence numbers emitted by the flow contract's
// logs, in emission order.
type SubmitReceipt struct {
	TxHash string
	Seqs   []uint64
}

// Flow submits a file descriptor to the flow contract and reports the
// assigned sequence numbers. Implementations own wallet, gas and ABI
// concerns.
type Flow interface {
	Submit(ctx context.Context, submission Submission, opt SubmitOption) (*SubmitReceipt, error)
}

// CalculatePrice computes the storage fee of a submission: one sector per
// leaf of every sub-tree, priced per sector.
func CalculatePrice(submission Submission, pricePerSector *big.Int) *big.Int {
	var sectors uint64
	for _, node := range submission.Nodes {
		sectors += 1 << node.Height
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(sectors), pricePerSector)
}
