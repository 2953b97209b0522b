package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/merkle"
)

func TestOpenMatchesInMemory(t *testing.T) {
	content := testContent(1000)

	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	onDisk, err := Open(path)
	require.NoError(t, err)
	defer onDisk.Close() //nolint:errcheck

	inMem := NewInMemory(content)

	require.Equal(t, inMem.Size(), onDisk.Size())
	require.EqualValues(t, 4, onDisk.NumChunks())
	require.EqualValues(t, 1, onDisk.NumSegments())

	diskTree, err := onDisk.MerkleTree()
	require.NoError(t, err)
	memTree, err := inMem.MerkleTree()
	require.NoError(t, err)
	require.Equal(t, memTree.RootHash(), diskTree.RootHash())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestMerkleTreeEmptyFile(t *testing.T) {
	_, err := NewInMemory(nil).MerkleTree()
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestSegmentRootEmpty(t *testing.T) {
	require.Equal(t, build.ZeroHash, SegmentRoot(nil, 0))
}

func TestSegmentRootSingleChunk(t *testing.T) {
	chunk := testContent(build.ChunkSize)
	require.Equal(t, merkle.Keccak256(chunk), SegmentRoot(chunk, 0))
}

func TestSegmentRootPaddingEquivalence(t *testing.T) {
	data := testContent(2 * build.ChunkSize)
	padded := append(append([]byte(nil), data...), make([]byte, 2*build.ChunkSize)...)

	require.Equal(t, SegmentRoot(padded, 0), SegmentRoot(data, 2))
}

func TestEmptyChunkHash(t *testing.T) {
	require.Equal(t, merkle.Keccak256(make([]byte, build.ChunkSize)), build.EmptyChunkHash)
}

func TestMerkleTreeSmallFile(t *testing.T) {
	// A sub-segment file has a single leaf, so the file root equals the
	// segment root over its padded chunks.
	content := testContent(300)
	tree, err := NewInMemory(content).MerkleTree()
	require.NoError(t, err)

	padded := append(append([]byte(nil), content...), make([]byte, 212)...)
	require.Equal(t, SegmentRoot(padded, 0), tree.RootHash())
}

func TestCreateSubmissionSingleChunk(t *testing.T) {
	chunk := testContent(build.ChunkSize)

	submission, err := NewInMemory(chunk).CreateSubmission([]byte{})
	require.NoError(t, err)

	require.EqualValues(t, build.ChunkSize, submission.Length)
	require.Len(t, submission.Nodes, 1)
	require.EqualValues(t, 0, submission.Nodes[0].Height)
	require.Equal(t, merkle.Keccak256(chunk), submission.Nodes[0].Root)
}

func TestCreateSubmissionTwoChunks(t *testing.T) {
	content := testContent(2 * build.ChunkSize)

	submission, err := NewInMemory(content).CreateSubmission([]byte{})
	require.NoError(t, err)

	require.Len(t, submission.Nodes, 1)
	require.EqualValues(t, 1, submission.Nodes[0].Height)

	h0 := merkle.Keccak256(content[:build.ChunkSize])
	h1 := merkle.Keccak256(content[build.ChunkSize:])
	require.Equal(t, merkle.Keccak256(h0[:], h1[:]), submission.Nodes[0].Root)
}

func TestCreateSubmissionDecomposition(t *testing.T) {
	cases := []struct {
		chunks  uint64
		heights []uint64
	}{
		{1, []uint64{0}},
		{2, []uint64{1}},
		{3, []uint64{1, 0}},  // padded to 3 = 2 + 1
		{5, []uint64{2, 0}},  // padded to 5 = 4 + 1
		{16, []uint64{4}},    // exact power of two
		{17, []uint64{4, 1}}, // padded to 18 = 16 + 2
	}
	for _, tc := range cases {
		content := testContent(int(tc.chunks) * build.ChunkSize)
		submission, err := NewInMemory(content).CreateSubmission([]byte{})
		require.NoError(t, err, "chunks=%d", tc.chunks)

		var heights []uint64
		for _, node := range submission.Nodes {
			heights = append(heights, node.Height)
		}
		require.Equal(t, tc.heights, heights, "chunks=%d", tc.chunks)
	}
}
