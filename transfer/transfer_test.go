package transfer

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/zgstorage/zgs-client/build"
	"github.com/zgstorage/zgs-client/contract"
	"github.com/zgstorage/zgs-client/file"
	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
)

// fakeNode is an in-process storage node, exposed over real JSON-RPC so the
// whole client stack is exercised, wire encoding included.
type fakeNode struct {
	mu sync.Mutex

	config shard.ShardConfig

	root     merkle.Hash
	info     *node.FileInfo
	segments map[uint64]node.SegmentWithProof
	expected int

	uploadErrs  []error
	uploadCalls int
}

func (n *fakeNode) GetStatus(ctx context.Context) (node.Status, error) {
	return node.Status{ConnectedPeers: 1, LogSyncHeight: 1}, nil
}

func (n *fakeNode) GetShardConfig(ctx context.Context) (shard.ShardConfig, error) {
	return n.config, nil
}

func (n *fakeNode) GetFileInfo(ctx context.Context, root merkle.Hash, needAvailable bool) (*node.FileInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.info == nil || root != n.root {
		return nil, nil
	}
	info := *n.info
	return &info, nil
}

func (n *fakeNode) GetFileInfoByTxSeq(ctx context.Context, txSeq uint64) (*node.FileInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.info == nil || n.info.Tx.Seq != txSeq {
		return nil, nil
	}
	info := *n.info
	return &info, nil
}

func (n *fakeNode) UploadSegmentsByTxSeq(ctx context.Context, segments []node.SegmentWithProof, txSeq uint64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.uploadCalls++
	if len(n.uploadErrs) > 0 {
		err := n.uploadErrs[0]
		n.uploadErrs = n.uploadErrs[1:]
		return 0, err
	}

	for _, seg := range segments {
		n.segments[seg.Index] = seg
	}
	if n.expected > 0 && len(n.segments) >= n.expected && n.info != nil {
		n.info.Finalized = true
	}
	return len(segments), nil
}

func (n *fakeNode) DownloadSegmentByTxSeq(ctx context.Context, txSeq, startIndex, endIndex uint64) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	seg, ok := n.segments[startIndex/build.SegmentMaxChunks]
	if !ok {
		return nil, nil
	}
	return seg.Data, nil
}

func (n *fakeNode) DownloadSegmentWithProofByTxSeq(ctx context.Context, txSeq, index uint64) (*node.SegmentWithProof, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	seg, ok := n.segments[index]
	if !ok {
		return nil, nil
	}
	out := seg
	return &out, nil
}

// seed makes the node aware of a file, as if its log sync had caught up.
func (n *fakeNode) seed(root merkle.Hash, info node.FileInfo, numSegments uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.root = root
	n.info = &info

	n.expected = 0
	for i := uint64(0); i < numSegments; i++ {
		if n.config.CoversSegment(i) {
			n.expected++
		}
	}
}

func (n *fakeNode) finalized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info != nil && n.info.Finalized
}

func (n *fakeNode) numSegments() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.segments)
}

// startFakeNode serves a fakeNode over HTTP and dials a client against it.
func startFakeNode(t *testing.T, config shard.ShardConfig) (*fakeNode, *node.ZgsClient) {
	t.Helper()

	fake := &fakeNode{
		config:   config,
		segments: make(map[uint64]node.SegmentWithProof),
	}

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("zgs", fake)
	for _, method := range []string{
		"GetStatus",
		"GetShardConfig",
		"GetFileInfo",
		"GetFileInfoByTxSeq",
		"UploadSegmentsByTxSeq",
		"DownloadSegmentByTxSeq",
		"DownloadSegmentWithProofByTxSeq",
	} {
		rpcServer.AliasMethod(node.MethodNameFormatter("zgs", method), "zgs."+method)
	}

	server := httptest.NewServer(rpcServer)
	t.Cleanup(server.Close)

	client, err := node.NewZgsClient(context.Background(), server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return fake, client
}

// fakeFlow assigns a fixed sequence number and seeds the given nodes with
// the resulting log entry, standing in for chain sync.
type fakeFlow struct {
	txHash string
	seq    uint64

	root        merkle.Hash
	numSegments uint64
	nodes       []*fakeNode

	submitted *contract.Submission
}

func (f *fakeFlow) Submit(ctx context.Context, submission contract.Submission, opt contract.SubmitOption) (*contract.SubmitReceipt, error) {
	f.submitted = &submission
	info := node.FileInfo{Tx: node.Transaction{Seq: f.seq, Size: submission.Length}}
	for _, n := range f.nodes {
		n.seed(f.root, info, f.numSegments)
	}
	return &contract.SubmitReceipt{TxHash: f.txHash, Seqs: []uint64{f.seq}}, nil
}

// testData fills n bytes with a repeating non-zero pattern so trailing
// padding is distinguishable from content.
func testData(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i%251 + 1)
	}
	return buf
}

func fileRoot(t *testing.T, f *file.File) merkle.Hash {
	t.Helper()
	tree, err := f.MerkleTree()
	require.NoError(t, err)
	return tree.RootHash()
}
