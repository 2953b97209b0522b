package file

import (
	"math/bits"

	"github.com/zgstorage/zgs-client/build"
)

// NumSplits returns how many unit-sized pieces are needed to cover total.
func NumSplits(total, unit uint64) uint64 {
	if total == 0 {
		return 0
	}
	return (total-1)/unit + 1
}

func nextPow2(n uint64) uint64 {
	if n <= 1 {
		return n
	}
	return 1 << bits.Len64(n-1)
}

// ComputePaddedSize pads a chunk count for flow submission. An exact power
// of two is left alone; otherwise the count is rounded up to a multiple of
// the padding granularity, which is a sixteenth of the next power of two
// (or a single chunk while the next power of two is still below 16). It
// returns the padded chunk count and the next power of two.
func ComputePaddedSize(chunks uint64) (uint64, uint64) {
	chunksNextPow2 := nextPow2(chunks)
	if chunksNextPow2 == chunks {
		return chunksNextPow2, chunksNextPow2
	}

	var minChunk uint64
	if chunksNextPow2 >= 16 {
		minChunk = chunksNextPow2 / 16
	} else {
		minChunk = 1
	}

	paddedChunks := NumSplits(chunks, minChunk) * minChunk
	return paddedChunks, chunksNextPow2
}

// SegmentRange computes the inclusive range of logical segment indices a
// file occupies, given its start entry (chunk) index in the flow and its
// byte size.
func SegmentRange(startChunkIndex, fileSize uint64) (uint64, uint64) {
	totalChunks := NumSplits(fileSize, build.ChunkSize)

	startSegmentIndex := startChunkIndex / build.SegmentMaxChunks
	endChunkIndex := startChunkIndex + totalChunks - 1
	endSegmentIndex := endChunkIndex / build.SegmentMaxChunks

	return startSegmentIndex, endSegmentIndex
}
