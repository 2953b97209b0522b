package file

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zgstorage/zgs-client/build"
)

// testContent fills n bytes with a repeating non-zero pattern so padding is
// distinguishable from data.
func testContent(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i%251 + 1)
	}
	return buf
}

func collect(t *testing.T, it *Iterator) [][]byte {
	t.Helper()
	var batches [][]byte
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		batches = append(batches, append([]byte(nil), it.Current()...))
	}
	return batches
}

func TestNewIteratorBatchAlignment(t *testing.T) {
	_, err := NewIterator(bytes.NewReader(nil), 0, 0, build.ChunkSize+1, false)
	require.Error(t, err)

	_, err = NewIterator(bytes.NewReader(nil), 0, 0, build.ChunkSize, false)
	require.NoError(t, err)
}

func TestIteratorPadsToChunkBoundary(t *testing.T) {
	content := testContent(300) // 2 chunks, 212 bytes of padding

	it, err := NewIterator(bytes.NewReader(content), 300, 0, build.ChunkSize, false)
	require.NoError(t, err)

	batches := collect(t, it)
	require.Len(t, batches, 2)
	require.Equal(t, content[:256], batches[0])
	require.Equal(t, content[256:], batches[1][:44])
	require.Equal(t, make([]byte, 212), batches[1][44:])
}

func TestIteratorSegmentBatch(t *testing.T) {
	content := testContent(300)

	it := NewSegmentIterator(bytes.NewReader(content), 300, 0, false)
	batches := collect(t, it)

	// a single 512-byte batch: the segment batch is clamped to the padded size
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 512)
	require.Equal(t, content, batches[0][:300])
	require.Equal(t, make([]byte, 212), batches[0][300:])
}

func TestIteratorFlowPadding(t *testing.T) {
	// 17 chunks of data pad to 18 chunks under flow padding.
	content := testContent(17 * build.ChunkSize)

	it, err := NewIterator(bytes.NewReader(content), uint64(len(content)), 0, build.ChunkSize, true)
	require.NoError(t, err)

	batches := collect(t, it)
	require.Len(t, batches, 18)
	for i := 0; i < 17; i++ {
		require.Equal(t, content[i*build.ChunkSize:(i+1)*build.ChunkSize], batches[i])
	}
	require.Equal(t, make([]byte, build.ChunkSize), batches[17])
}

func TestIteratorOffset(t *testing.T) {
	content := testContent(4 * build.ChunkSize)

	it, err := NewIterator(bytes.NewReader(content), uint64(len(content)), 2*build.ChunkSize, build.ChunkSize, false)
	require.NoError(t, err)

	batches := collect(t, it)
	require.Len(t, batches, 2)
	require.Equal(t, content[2*build.ChunkSize:3*build.ChunkSize], batches[0])
	require.Equal(t, content[3*build.ChunkSize:], batches[1])
}

func TestIteratorEmptySource(t *testing.T) {
	it := NewSegmentIterator(bytes.NewReader(nil), 0, 0, false)
	ok, err := it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
