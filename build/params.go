// Package build holds the protocol constants of the storage network. They
// are wire-level parameters shared with every other implementation and must
// not be changed.
package build

import (
	"github.com/zgstorage/zgs-client/merkle"
)

// /////
// Flow layout

// ChunkSize is the atomic unit of file content, in bytes. Every leaf of a
// segment tree hashes exactly one chunk.
const ChunkSize = 256

// SegmentMaxChunks is the number of chunks per segment, the unit of transfer
// and per-shard assignment.
const SegmentMaxChunks = 1024

// SegmentSize is the segment size in bytes.
const SegmentSize = ChunkSize * SegmentMaxChunks

// /////
// Known digests

// EmptyChunkHash is the Keccak-256 digest of an all-zero chunk, used as a
// pre-known leaf for trailing padding.
var EmptyChunkHash = merkle.Keccak256(make([]byte, ChunkSize))

// ZeroHash is the all-zero digest.
var ZeroHash merkle.Hash
