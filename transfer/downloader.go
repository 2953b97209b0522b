package transfer

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/file"
	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
)

var (
	// ErrFileNotFound is returned when no target node knows the root hash.
	ErrFileNotFound = xerrors.New("file not found on any storage node")
	// ErrFileNotFinalized is returned when the chosen file info is not
	// finalized yet.
	ErrFileNotFinalized = xerrors.New("file is not finalized yet")
	// ErrProofValidation is returned when a downloaded segment's inclusion
	// proof does not verify against the file root.
	ErrProofValidation = xerrors.New("failed to validate downloaded segment proof")
)

// Downloader locates, fetches, reassembles and de-pads file segments from a
// set of sharded storage nodes. One download writes sequentially to a
// single output file; segments are fetched strictly in index order.
type Downloader struct {
	clients      []*node.ZgsClient
	shardConfigs []shard.ShardConfig

	startSegmentIndex uint64
	endSegmentIndex   uint64
}

// NewDownloader creates a downloader over the given node set.
func NewDownloader(clients []*node.ZgsClient) (*Downloader, error) {
	if len(clients) == 0 {
		return nil, xerrors.New("no storage nodes provided")
	}
	return &Downloader{clients: clients}, nil
}

// Close closes the underlying node clients.
func (d *Downloader) Close() {
	for _, client := range d.clients {
		client.Close()
	}
}

// Download fetches the file with the given root hash into outputPath. The
// destination must not exist and its parent directory must. With withProof
// set every segment is fetched with its inclusion proof and validated
// before it is written.
func (d *Downloader) Download(ctx context.Context, root merkle.Hash, outputPath string, withProof bool) error {
	info, err := d.queryFile(ctx, root)
	if err != nil {
		return err
	}
	if !info.Finalized {
		return ErrFileNotFinalized
	}
	if err := checkExist(outputPath); err != nil {
		return err
	}

	configs, err := getShardConfigs(ctx, d.clients)
	if err != nil {
		return err
	}
	d.shardConfigs = configs

	return d.downloadFile(ctx, root, outputPath, info, withProof)
}

// queryFile asks every node for the file info, preferring a finalized
// answer; a non-finalized one is kept as fallback. Node errors only skip
// that node.
func (d *Downloader) queryFile(ctx context.Context, root merkle.Hash) (*node.FileInfo, error) {
	var fileInfo *node.FileInfo
	for _, client := range d.clients {
		info, err := client.GetFileInfo(ctx, root, true)
		if err != nil {
			log.Debugf("failed to query file info on %s: %s", client.URL(), err)
			continue
		}
		if info == nil {
			continue
		}
		if info.Finalized {
			return info, nil
		}
		if fileInfo == nil {
			fileInfo = info
		}
	}
	if fileInfo == nil {
		return nil, ErrFileNotFound
	}
	return fileInfo, nil
}

func (d *Downloader) downloadFile(ctx context.Context, root merkle.Hash, outputPath string, info *node.FileInfo, withProof bool) error {
	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return xerrors.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close() // nolint:errcheck // re-checked on the success path

	numChunks := file.NumSplits(info.Tx.Size, build.ChunkSize)
	d.startSegmentIndex, d.endSegmentIndex = file.SegmentRange(info.Tx.StartEntryIndex, info.Tx.Size)
	numTasks := d.endSegmentIndex - d.startSegmentIndex + 1

	log.Infow("downloading file",
		"root", root,
		"size", humanize.IBytes(info.Tx.Size),
		"segments", numTasks,
		"withProof", withProof)

	for taskInd := uint64(0); taskInd < numTasks; taskInd++ {
		segment, err := d.downloadTask(ctx, root, info, taskInd, numChunks, withProof)
		if err != nil {
			return err
		}
		if _, err := out.Write(segment); err != nil {
			return xerrors.Errorf("writing to %s: %w", outputPath, err)
		}
	}

	return out.Close()
}

// downloadTask fetches the segment at file-local index taskInd, rotating
// the starting node by the task index to spread load, skipping nodes whose
// shard does not cover the segment's logical index.
func (d *Downloader) downloadTask(ctx context.Context, root merkle.Hash, info *node.FileInfo, taskInd, numChunks uint64, withProof bool) ([]byte, error) {
	segmentIndex := taskInd

	startIndex := segmentIndex * build.SegmentMaxChunks
	endIndex := startIndex + build.SegmentMaxChunks
	if endIndex > numChunks {
		endIndex = numChunks
	}

	for i := 0; i < len(d.shardConfigs); i++ {
		nodeIndex := (int(taskInd) + i) % len(d.shardConfigs)
		if !d.shardConfigs[nodeIndex].CoversSegment(d.startSegmentIndex + segmentIndex) {
			continue
		}

		if withProof {
			segment, err := d.downloadSegmentWithProof(ctx, root, info, nodeIndex, segmentIndex, numChunks)
			if err != nil {
				log.Warnf("failed to download segment %d with proof from %s: %s",
					segmentIndex, d.clients[nodeIndex].URL(), err)
				continue
			}
			return segment, nil
		}

		segment, err := d.clients[nodeIndex].DownloadSegmentByTxSeq(ctx, info.Tx.Seq, startIndex, endIndex)
		if err != nil {
			log.Warnf("failed to download segment %d from %s: %s", segmentIndex, d.clients[nodeIndex].URL(), err)
			continue
		}
		if len(segment) == 0 {
			continue
		}

		// strip the trailing zero padding of the file's final chunk
		if d.startSegmentIndex+segmentIndex == d.endSegmentIndex {
			if lastChunkSize := info.Tx.Size % build.ChunkSize; lastChunkSize > 0 {
				paddings := build.ChunkSize - lastChunkSize
				segment = segment[:uint64(len(segment))-paddings]
			}
		}
		return segment, nil
	}

	return nil, xerrors.Errorf("no storage node holds segment with index %d", segmentIndex)
}

// downloadSegmentWithProof fetches one segment together with its inclusion
// proof and validates it against the known file root before accepting it.
func (d *Downloader) downloadSegmentWithProof(ctx context.Context, root merkle.Hash, info *node.FileInfo, nodeIndex int, segmentIndex, numChunks uint64) ([]byte, error) {
	seg, err := d.clients[nodeIndex].DownloadSegmentWithProofByTxSeq(ctx, info.Tx.Seq, segmentIndex)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, xerrors.New("node returned no segment")
	}

	if err := validateSegmentProof(root, seg, segmentIndex, numChunks); err != nil {
		return nil, err
	}

	// truncate to the bytes this segment really contributes
	data := seg.Data
	remaining := info.Tx.Size - segmentIndex*build.SegmentSize
	if uint64(len(data)) > remaining {
		data = data[:remaining]
	}
	return data, nil
}

// validateSegmentProof checks a downloaded segment against the file root:
// the segment root is recomputed with the flow padding the uploader applied
// and the proof must place it at the expected leaf position.
func validateSegmentProof(root merkle.Hash, seg *node.SegmentWithProof, segmentIndex, numChunks uint64) error {
	paddedChunks, _ := file.ComputePaddedSize(numChunks)
	numLeaves := file.NumSplits(paddedChunks, build.SegmentMaxChunks)

	startChunk := segmentIndex * build.SegmentMaxChunks
	coveredChunks := paddedChunks - startChunk
	if coveredChunks > build.SegmentMaxChunks {
		coveredChunks = build.SegmentMaxChunks
	}

	// chunk-align the data before hashing; padding within the last chunk
	// is zeros by protocol
	data := seg.Data
	if rem := len(data) % build.ChunkSize; rem != 0 {
		aligned := make([]byte, len(data)+build.ChunkSize-rem)
		copy(aligned, data)
		data = aligned
	}

	dataChunks := file.NumSplits(uint64(len(data)), build.ChunkSize)
	var emptyChunks uint64
	if coveredChunks > dataChunks {
		emptyChunks = coveredChunks - dataChunks
	}

	segmentRoot := file.SegmentRoot(data, emptyChunks)
	if err := seg.Proof.ValidateHash(root, segmentRoot, segmentIndex, numLeaves); err != nil {
		return xerrors.Errorf("%w: segment %d: %s", ErrProofValidation, segmentIndex, err)
	}
	return nil
}
