// Package transfer orchestrates reliable file transfer against a set of
// sharded storage nodes: the Uploader commits a file to the flow log and
// pushes its segments with proofs, the Downloader locates and reassembles
// them.
package transfer

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/contract"
	"github.com/zgstorage/zgs-client/file"
	"github.com/zgstorage/zgs-client/lib/retry"
	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
)

var log = logging.Logger("transfer")

// logEntryPollInterval is the fixed interval of the finality poll loop. The
// loop itself has no deadline; callers bound it through the context.
const logEntryPollInterval = time.Second

// defaultTaskParallelism bounds the upload worker pool when the caller does
// not choose a limit. Tasks are independent, only ordering inside one task
// matters.
const defaultTaskParallelism = 4

var (
	// ErrNoFlow is returned when a transaction must be submitted but no
	// flow submitter was configured.
	ErrNoFlow = xerrors.New("no flow submitter configured")
	// ErrNoTxSeq is returned when the flow submission emitted no sequence
	// number.
	ErrNoTxSeq = xerrors.New("no sequence number emitted by flow submission")
	// ErrNilResponse marks a null upload response, which the retry policy
	// treats as transient.
	ErrNilResponse = xerrors.New("returned null for upload segments")
)

// UploadOption controls one upload.
type UploadOption struct {
	Tags             []byte   // submission tags
	FinalityRequired bool     // wait for finality after transfer
	TaskSize         uint64   // segments per upload task
	ExpectedReplica  uint64   // replication factor the node set must satisfy
	SkipTx           bool     // skip the flow transaction when the file is already known on-chain
	Parallelism      int      // worker pool size, defaults to defaultTaskParallelism
	Fee              *big.Int // optional fee override for the submitter
	Nonce            *big.Int // optional nonce override for the submitter
}

// DefaultUploadOption mirrors the network defaults.
func DefaultUploadOption() UploadOption {
	return UploadOption{
		Tags:             []byte{},
		FinalityRequired: true,
		TaskSize:         10,
		ExpectedReplica:  1,
	}
}

// RetryOption bounds the per-task segment upload retry loop.
type RetryOption struct {
	Retries  int
	Interval time.Duration
}

func DefaultRetryOption() RetryOption {
	return RetryOption{Retries: 3, Interval: 3 * time.Second}
}

// UploadResult is the partial or final outcome of an upload. RootHash is
// known as soon as the tree is built, even when a later stage fails.
type UploadResult struct {
	TxHash   string
	RootHash merkle.Hash
}

// Uploader submits a file to the flow log and transfers its segments to the
// target nodes.
type Uploader struct {
	clients []*node.ZgsClient
	flow    contract.Flow
}

// NewUploader creates an uploader over the given node set. flow may be nil
// when every upload will run with SkipTx against already-committed files.
func NewUploader(flow contract.Flow, clients []*node.ZgsClient) (*Uploader, error) {
	if len(clients) == 0 {
		return nil, xerrors.New("no storage nodes provided")
	}
	return &Uploader{clients: clients, flow: flow}, nil
}

// Close closes the underlying node clients.
func (u *Uploader) Close() {
	for _, client := range u.clients {
		client.Close()
	}
}

type uploadTask struct {
	clientIndex int
	segIndex    uint64 // file-local index of the first segment of this task
	numShard    uint64
	taskSize    uint64
	txSeq       uint64
}

// Upload runs the full pipeline: tree build, existing-file short-circuit,
// flow submission, finality wait, per-shard task split, segment transfer,
// and a final finality wait. The returned result carries whatever is known
// at the point of failure.
func (u *Uploader) Upload(ctx context.Context, f *file.File, opt UploadOption, retryOpts ...RetryOption) (*UploadResult, error) {
	retryOpt := DefaultRetryOption()
	if len(retryOpts) > 0 {
		retryOpt = retryOpts[0]
	}

	tree, err := f.MerkleTree()
	if err != nil {
		return &UploadResult{}, xerrors.Errorf("building merkle tree: %w", err)
	}
	rootHash := tree.RootHash()
	result := &UploadResult{RootHash: rootHash}

	log.Infow("data prepared to upload",
		"root", rootHash,
		"size", humanize.IBytes(f.Size()),
		"numSegments", f.NumSegments(),
		"numChunks", f.NumChunks())

	info := u.findExistingFileInfo(ctx, rootHash)

	if info == nil || !opt.SkipTx {
		if u.flow == nil {
			return result, ErrNoFlow
		}

		submission, err := f.CreateSubmission(opt.Tags)
		if err != nil {
			return result, xerrors.Errorf("creating submission: %w", err)
		}

		receipt, err := u.flow.Submit(ctx, *submission, contract.SubmitOption{Fee: opt.Fee, Nonce: opt.Nonce})
		if err != nil {
			return result, xerrors.Errorf("submitting flow transaction: %w", err)
		}
		if len(receipt.Seqs) == 0 {
			return result, ErrNoTxSeq
		}
		result.TxHash = receipt.TxHash
		log.Infow("flow transaction submitted", "txHash", receipt.TxHash, "txSeq", receipt.Seqs[0])

		info, err = u.waitForLogEntry(ctx, receipt.Seqs[0], false)
		if err != nil {
			return result, err
		}
	}

	if info == nil {
		return result, xerrors.New("failed to get log entry")
	}

	tasks, err := u.splitTasks(ctx, info, tree, opt)
	if err != nil {
		return result, err
	}
	if len(tasks) == 0 {
		return result, nil
	}

	log.Infof("processing %d upload tasks", len(tasks))
	if err := u.processTasks(ctx, f, tree, tasks, opt, retryOpt); err != nil {
		return result, err
	}
	log.Info("all upload tasks processed")

	if _, err := u.waitForLogEntry(ctx, info.Tx.Seq, opt.FinalityRequired); err != nil {
		return result, err
	}
	return result, nil
}

// findExistingFileInfo asks every target node whether it already knows the
// root hash. Node errors only skip that node.
func (u *Uploader) findExistingFileInfo(ctx context.Context, root merkle.Hash) *node.FileInfo {
	for _, client := range u.clients {
		info, err := client.GetFileInfo(ctx, root, false)
		if err != nil {
			log.Debugf("failed to get file info from %s: %s", client.URL(), err)
			continue
		}
		if info != nil {
			log.Infow("found existing file info", "node", client.URL(), "txSeq", info.Tx.Seq, "finalized", info.Finalized)
			return info
		}
	}
	return nil
}

// waitForLogEntry polls every target node until all report the log entry
// (and, when required, finality). There is deliberately no internal
// timeout; cancel through ctx.
func (u *Uploader) waitForLogEntry(ctx context.Context, txSeq uint64, finalityRequired bool) (*node.FileInfo, error) {
	log.Infow("waiting for log entry on storage nodes", "txSeq", txSeq, "finalityRequired", finalityRequired)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(logEntryPollInterval):
		}

		var info *node.FileInfo
		ok := true
		for _, client := range u.clients {
			var err error
			info, err = client.GetFileInfoByTxSeq(ctx, txSeq)
			if err != nil {
				log.Warnf("failed to query log entry on %s: %s", client.URL(), err)
				ok = false
				break
			}
			if info == nil {
				if status, serr := client.GetStatus(ctx); serr == nil && status != nil {
					log.Debugf("log entry is unavailable yet on %s, logSyncHeight=%d", client.URL(), status.LogSyncHeight)
				} else {
					log.Debugf("log entry is unavailable yet on %s", client.URL())
				}
				ok = false
				break
			}
			if finalityRequired && !info.Finalized {
				log.Debugf("log entry is available but not finalized yet on %s", client.URL())
				ok = false
				break
			}
		}

		if ok {
			return info, nil
		}
	}
}

// nextSegmentIndex returns the smallest segment index >= startIndex that is
// congruent to the shard id modulo the shard count.
func nextSegmentIndex(config shard.ShardConfig, startIndex uint64) uint64 {
	if config.NumShard < 2 {
		return startIndex
	}
	return (startIndex+config.NumShard-1-config.ShardID)/config.NumShard*config.NumShard + config.ShardID
}

// splitTasks plans the remaining transfer work: one task queue per node
// that has not finalized the file yet, interleaved round-robin with the
// shortest queues first so no node's queue is starved by another's length.
func (u *Uploader) splitTasks(ctx context.Context, info *node.FileInfo, tree *merkle.Tree, opt UploadOption) ([]uploadTask, error) {
	configs, err := getShardConfigs(ctx, u.clients)
	if err != nil {
		return nil, err
	}
	if !shard.CheckReplica(configs, opt.ExpectedReplica) {
		return nil, shard.ErrInsufficientReplicas
	}

	startSegmentIndex, endSegmentIndex := file.SegmentRange(info.Tx.StartEntryIndex, info.Tx.Size)

	var queues [][]uploadTask
	for clientIndex, config := range configs {
		cInfo, err := u.clients[clientIndex].GetFileInfo(ctx, tree.RootHash(), true)
		if err == nil && cInfo != nil && cInfo.Finalized {
			log.Infof("file already finalized on %s, skipping", u.clients[clientIndex].URL())
			continue
		}

		var tasks []uploadTask
		for segIndex := nextSegmentIndex(config, startSegmentIndex); segIndex <= endSegmentIndex; segIndex += config.NumShard * opt.TaskSize {
			tasks = append(tasks, uploadTask{
				clientIndex: clientIndex,
				segIndex:    segIndex - startSegmentIndex,
				numShard:    config.NumShard,
				taskSize:    opt.TaskSize,
				txSeq:       info.Tx.Seq,
			})
		}
		if len(tasks) > 0 {
			queues = append(queues, tasks)
		}
	}

	if len(queues) == 0 {
		return nil, nil
	}

	sort.SliceStable(queues, func(i, j int) bool {
		return len(queues[i]) < len(queues[j])
	})

	longest := len(queues[len(queues)-1])
	var tasks []uploadTask
	for taskIndex := 0; taskIndex < longest; taskIndex++ {
		for _, queue := range queues {
			if taskIndex < len(queue) {
				tasks = append(tasks, queue[taskIndex])
			}
		}
	}
	return tasks, nil
}

// getSegment assembles one SegmentWithProof. The first return value is true
// once the final data-bearing segment of the file has been reached.
func (u *Uploader) getSegment(f *file.File, tree *merkle.Tree, segIndex uint64) (bool, *node.SegmentWithProof, error) {
	numChunks := f.NumChunks()

	startIndex := segIndex * build.SegmentMaxChunks
	if startIndex >= numChunks {
		return true, nil, nil
	}

	iter, err := f.IterateWithOffsetAndBatch(segIndex*build.SegmentSize, build.SegmentSize, true)
	if err != nil {
		return false, nil, err
	}
	ok, err := iter.Next()
	if err != nil {
		return false, nil, xerrors.Errorf("reading segment %d: %w", segIndex, err)
	}
	if !ok {
		return false, nil, xerrors.Errorf("no data for segment %d", segIndex)
	}
	segment := iter.Current()

	proof, err := tree.ProofAt(int(segIndex))
	if err != nil {
		return false, nil, err
	}

	allDataUploaded := false
	if startIndex+uint64(len(segment))/build.ChunkSize >= numChunks {
		// last segment carrying real data, truncate to the true content length
		expectedLen := build.ChunkSize * (numChunks - startIndex)
		segment = segment[:expectedLen]
		allDataUploaded = true
	}

	return allDataUploaded, &node.SegmentWithProof{
		Root:     tree.RootHash(),
		Data:     append([]byte(nil), segment...),
		Index:    segIndex,
		Proof:    proof,
		FileSize: f.Size(),
	}, nil
}

// processTasks runs independent tasks on a bounded worker pool. The tree
// and file source are read-only and shared; each task owns its segment
// assembly and retry loop.
func (u *Uploader) processTasks(ctx context.Context, f *file.File, tree *merkle.Tree, tasks []uploadTask, opt UploadOption, retryOpt RetryOption) error {
	parallelism := opt.Parallelism
	if parallelism <= 0 {
		parallelism = defaultTaskParallelism
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := u.uploadTask(ctx, f, tree, task, retryOpt); err != nil {
				return xerrors.Errorf("uploading to %s: %w", u.clients[task.clientIndex].URL(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// uploadTask assembles the task's segments in ascending index order and
// uploads them in one RPC, retrying transient failures with linear backoff.
func (u *Uploader) uploadTask(ctx context.Context, f *file.File, tree *merkle.Tree, task uploadTask, retryOpt RetryOption) error {
	segIndex := task.segIndex
	var segments []node.SegmentWithProof
	for i := uint64(0); i < task.taskSize; i++ {
		allDataUploaded, segment, err := u.getSegment(f, tree, segIndex)
		if err != nil {
			return err
		}
		if segment != nil {
			segments = append(segments, *segment)
		}
		if allDataUploaded {
			break
		}
		segIndex += task.numShard
	}
	if len(segments) == 0 {
		return nil
	}

	client := u.clients[task.clientIndex]
	_, err := retry.Do(ctx, retryOpt.Retries, retryOpt.Interval, isRetryableError, func() (*int, error) {
		res, err := client.UploadSegmentsByTxSeq(ctx, segments, task.txSeq)
		if err != nil {
			if isAlreadyUploadedError(err) {
				// idempotent no-op, the data is already there
				log.Infof("segments already uploaded and finalized on %s", client.URL())
				return nil, nil
			}
			return nil, err
		}
		if res == nil {
			return nil, xerrors.Errorf("node %s: %w", client.URL(), ErrNilResponse)
		}
		return res, nil
	})
	return err
}

func isAlreadyUploadedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already uploaded and finalized") ||
		(strings.Contains(msg, "invalid params") && strings.Contains(msg, "already uploaded"))
}

func isRetryableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "too many data writing") ||
		strings.Contains(msg, "returned null for upload segments")
}
