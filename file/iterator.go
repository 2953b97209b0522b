package file

import (
	"fmt"
	"io"

	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/build"
)

// Iterator yields fixed-size batches of file content, zero-padded out to the
// flow-padded chunk boundary. It is single-threaded and not restartable;
// re-running from offset zero means constructing a new iterator. The only
// blocking point is the underlying ReadAt.
type Iterator struct {
	source     io.ReaderAt
	buf        []byte // len(buf) == batchSize
	bufSize    uint64 // content bytes in buf
	fileSize   uint64
	paddedSize uint64 // fileSize rounded up to padding, in bytes
	batchSize  uint64
	offset     uint64
}

// NewIterator positions an iterator over source at offset. batch must be a
// multiple of the chunk size. With flowPadding the iterator runs past the
// end of the file up to the flow-padded chunk count, yielding zeros.
func NewIterator(source io.ReaderAt, fileSize, offset, batch uint64, flowPadding bool) (*Iterator, error) {
	if batch%build.ChunkSize > 0 {
		return nil, xerrors.New("batch size should align with chunk size")
	}

	chunks := NumSplits(fileSize, build.ChunkSize)

	var paddedSize uint64
	if flowPadding {
		paddedChunks, _ := ComputePaddedSize(chunks)
		paddedSize = paddedChunks * build.ChunkSize
	} else {
		paddedSize = chunks * build.ChunkSize
	}

	return &Iterator{
		source:     source,
		buf:        make([]byte, batch),
		fileSize:   fileSize,
		paddedSize: paddedSize,
		batchSize:  batch,
		offset:     offset,
	}, nil
}

// NewSegmentIterator returns an iterator with the default segment-sized
// batch.
func NewSegmentIterator(source io.ReaderAt, fileSize, offset uint64, flowPadding bool) *Iterator {
	// SegmentSize is chunk aligned, the error path is unreachable
	it, err := NewIterator(source, fileSize, offset, build.SegmentSize, flowPadding)
	if err != nil {
		panic(err)
	}
	return it
}

func (it *Iterator) clearBuffer() {
	it.bufSize = 0
}

func (it *Iterator) paddingZeros(length uint64) {
	start := it.bufSize
	for i := start; i < start+length; i++ {
		it.buf[i] = 0
	}
	it.bufSize += length
	it.offset += length
}

// Next advances to the next batch. It returns false with a nil error at the
// end of the padded range. A read returning more data than requested is a
// programming error and panics.
func (it *Iterator) Next() (bool, error) {
	if it.offset >= it.paddedSize {
		return false, nil
	}

	// expected batch, including padding zeros
	expectedBufSize := it.paddedSize - it.offset
	if expectedBufSize > it.batchSize {
		expectedBufSize = it.batchSize
	}

	it.clearBuffer()

	if it.offset >= it.fileSize {
		// pure padding region, no data to read
		it.paddingZeros(expectedBufSize)
		return true, nil
	}

	n, err := it.readFromFile(it.offset, it.offset+it.batchSize)
	if err != nil {
		return false, err
	}
	it.bufSize = n
	it.offset += n

	if n == expectedBufSize {
		return true, nil
	}
	if n > expectedBufSize {
		panic(fmt.Sprintf("load more data from file than expected: %d > %d", n, expectedBufSize))
	}

	it.paddingZeros(expectedBufSize - n)
	return true, nil
}

// readFromFile reads [start, end) clamped to the file size into the head of
// the buffer, returning the number of bytes read.
func (it *Iterator) readFromFile(start, end uint64) (uint64, error) {
	if start >= it.fileSize {
		return 0, xerrors.New("invalid start offset")
	}
	if end > it.fileSize {
		end = it.fileSize
	}

	n, err := it.source.ReadAt(it.buf[:end-start], int64(start))
	if err != nil && !(err == io.EOF && uint64(n) == end-start) {
		return 0, xerrors.Errorf("reading source at %d: %w", start, err)
	}
	return uint64(n), nil
}

// Current returns the filled prefix of the internal buffer. The slice is
// only valid until the next call to Next.
func (it *Iterator) Current() []byte {
	return it.buf[:it.bufSize]
}
