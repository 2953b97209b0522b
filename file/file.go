// Package file splits raw content into chunks and segments, hashes them
// into the canonical Merkle tree, and builds the on-chain submission
// descriptor.
package file

import (
	"bytes"
	"io"
	"math/bits"
	"os"

	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/contract"
	"github.com/zgstorage/zgs-client/merkle"
)

// ErrEmptyFile is returned when a Merkle tree is requested over zero
// content.
var ErrEmptyFile = xerrors.New("file has no content")

// File is a chunkable byte source: an open file on disk or an in-memory
// buffer. The source is read-only and safe to share across concurrent
// iterators.
type File struct {
	source io.ReaderAt
	size   uint64
	closer io.Closer
}

// Open opens a file on disk. The caller owns the handle and must Close it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, xerrors.Errorf("stat %s: %w", path, err)
	}
	return &File{source: f, size: uint64(info.Size()), closer: f}, nil
}

// NewInMemory wraps an in-memory buffer.
func NewInMemory(data []byte) *File {
	return &File{source: bytes.NewReader(data), size: uint64(len(data))}
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func (f *File) Size() uint64 {
	return f.size
}

func (f *File) NumChunks() uint64 {
	return NumSplits(f.size, build.ChunkSize)
}

func (f *File) NumSegments() uint64 {
	return NumSplits(f.size, build.SegmentSize)
}

// Iterate returns a segment-sized iterator from offset zero.
func (f *File) Iterate(flowPadding bool) *Iterator {
	return NewSegmentIterator(f.source, f.size, 0, flowPadding)
}

// IterateWithOffsetAndBatch returns an iterator over a sub-range with a
// custom batch size, used during per-node task construction.
func (f *File) IterateWithOffsetAndBatch(offset, batch uint64, flowPadding bool) (*Iterator, error) {
	return NewIterator(f.source, f.size, offset, batch, flowPadding)
}

// SegmentRoot re-chunks one segment and builds a small tree over the chunk
// hashes, optionally appending pre-known empty-chunk leaves for trailing
// padding. An empty segment yields the zero hash.
func SegmentRoot(segment []byte, emptyChunksPadded uint64) merkle.Hash {
	tree := merkle.NewTree()

	for offset := 0; offset < len(segment); offset += build.ChunkSize {
		end := offset + build.ChunkSize
		if end > len(segment) {
			end = len(segment)
		}
		tree.AddLeaf(segment[offset:end])
	}

	for i := uint64(0); i < emptyChunksPadded; i++ {
		tree.AddLeafByHash(build.EmptyChunkHash)
	}

	if tree.Build() == nil {
		return build.ZeroHash
	}
	return tree.RootHash()
}

// MerkleTree builds the full-file tree: one leaf per flow-padded segment,
// each leaf being that segment's root.
func (f *File) MerkleTree() (*merkle.Tree, error) {
	iter := f.Iterate(true)
	tree := merkle.NewTree()

	for {
		ok, err := iter.Next()
		if err != nil {
			return nil, xerrors.Errorf("iterating segments: %w", err)
		}
		if !ok {
			break
		}
		tree.AddLeafByHash(SegmentRoot(iter.Current(), 0))
	}

	if tree.Build() == nil {
		return nil, ErrEmptyFile
	}
	return tree, nil
}

// CreateSubmission builds the on-chain descriptor: the file length, caller
// tags, and one Merkle node per power-of-two sub-tree from splitNodes.
func (f *File) CreateSubmission(tags []byte) (*contract.Submission, error) {
	submission := contract.Submission{
		Length: f.size,
		Tags:   tags,
	}

	var offset uint64
	for _, chunks := range f.splitNodes() {
		node, err := f.createNode(offset, chunks)
		if err != nil {
			return nil, err
		}
		submission.Nodes = append(submission.Nodes, node)
		offset += chunks * build.ChunkSize
	}

	return &submission, nil
}

// splitNodes greedily decomposes the flow-padded chunk count into a
// descending sequence of power-of-two chunk counts, one per on-chain
// sub-tree.
func (f *File) splitNodes() []uint64 {
	var nodes []uint64

	paddedChunks, chunksNextPow2 := ComputePaddedSize(f.NumChunks())
	nextChunkSize := chunksNextPow2

	for paddedChunks > 0 {
		if paddedChunks >= nextChunkSize {
			paddedChunks -= nextChunkSize
			nodes = append(nodes, nextChunkSize)
		}
		nextChunkSize /= 2
	}

	return nodes
}

func (f *File) createNode(offset, chunks uint64) (contract.SubmissionNode, error) {
	batch := chunks
	if chunks > build.SegmentMaxChunks {
		batch = build.SegmentMaxChunks
	}
	return f.createSegmentNode(offset, build.ChunkSize*batch, build.ChunkSize*chunks)
}

// createSegmentNode builds one sub-tree over size bytes starting at offset,
// iterating in batch-sized steps.
func (f *File) createSegmentNode(offset, batch, size uint64) (contract.SubmissionNode, error) {
	iter, err := f.IterateWithOffsetAndBatch(offset, batch, true)
	if err != nil {
		return contract.SubmissionNode{}, err
	}

	tree := merkle.NewTree()
	for i := uint64(0); i < size; {
		ok, err := iter.Next()
		if err != nil {
			return contract.SubmissionNode{}, xerrors.Errorf("iterating segments: %w", err)
		}
		if !ok {
			break
		}
		tree.AddLeafByHash(SegmentRoot(iter.Current(), 0))
		i += uint64(len(iter.Current()))
	}
	tree.Build()

	numChunks := size / build.ChunkSize
	return contract.SubmissionNode{
		Root:   tree.RootHash(),
		Height: uint64(bits.TrailingZeros64(numChunks)),
	}, nil
}
