// Package node provides the JSON-RPC client for storage nodes.
package node

import (
	"context"
	"strings"

	"github.com/filecoin-project/go-jsonrpc"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/shard"
)

var log = logging.Logger("node")

// MethodNameFormatter maps Go method names onto the node software's wire
// form: ("zgs", "GetFileInfo") becomes "zgs_getFileInfo".
func MethodNameFormatter(namespace, method string) string {
	return namespace + "_" + strings.ToLower(method[:1]) + method[1:]
}

// ZgsClient is a storage node RPC client. Methods mirror the node's zgs_*
// JSON-RPC 2.0 surface; a nil result pointer means the node answered null.
type ZgsClient struct {
	url    string
	closer jsonrpc.ClientCloser

	inner struct {
		GetStatus          func(ctx context.Context) (*Status, error)
		GetShardConfig     func(ctx context.Context) (*shard.ShardConfig, error)
		GetFileInfo        func(ctx context.Context, root merkle.Hash, needAvailable bool) (*FileInfo, error)
		GetFileInfoByTxSeq func(ctx context.Context, txSeq uint64) (*FileInfo, error)

		UploadSegment         func(ctx context.Context, segment SegmentWithProof) (*int, error)
		UploadSegments        func(ctx context.Context, segments []SegmentWithProof) (*int, error)
		UploadSegmentByTxSeq  func(ctx context.Context, segment SegmentWithProof, txSeq uint64) (*int, error)
		UploadSegmentsByTxSeq func(ctx context.Context, segments []SegmentWithProof, txSeq uint64) (*int, error)

		DownloadSegment                 func(ctx context.Context, root merkle.Hash, startIndex, endIndex uint64) ([]byte, error)
		DownloadSegmentByTxSeq          func(ctx context.Context, txSeq, startIndex, endIndex uint64) ([]byte, error)
		DownloadSegmentWithProof        func(ctx context.Context, root merkle.Hash, index uint64) (*SegmentWithProof, error)
		DownloadSegmentWithProofByTxSeq func(ctx context.Context, txSeq, index uint64) (*SegmentWithProof, error)

		GetSectorProof func(ctx context.Context, sectorIndex uint64, root merkle.Hash) (*merkle.Proof, error)
	}
}

// NewZgsClient dials a storage node over HTTP.
func NewZgsClient(ctx context.Context, url string) (*ZgsClient, error) {
	c := &ZgsClient{url: url}
	closer, err := jsonrpc.NewMergeClient(ctx, url, "zgs",
		[]interface{}{&c.inner},
		nil,
		jsonrpc.WithMethodNameFormatter(MethodNameFormatter),
	)
	if err != nil {
		return nil, xerrors.Errorf("dialing storage node %s: %w", url, err)
	}
	c.closer = closer
	return c, nil
}

// NewZgsClients dials all urls, failing on the first bad one.
func NewZgsClients(ctx context.Context, urls []string) ([]*ZgsClient, error) {
	clients := make([]*ZgsClient, 0, len(urls))
	for _, url := range urls {
		client, err := NewZgsClient(ctx, url)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func (c *ZgsClient) URL() string {
	return c.url
}

func (c *ZgsClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *ZgsClient) GetStatus(ctx context.Context) (*Status, error) {
	return c.inner.GetStatus(ctx)
}

func (c *ZgsClient) GetShardConfig(ctx context.Context) (*shard.ShardConfig, error) {
	return c.inner.GetShardConfig(ctx)
}

// GetFileInfo queries a file by root hash; nil when the node has no entry.
func (c *ZgsClient) GetFileInfo(ctx context.Context, root merkle.Hash, needAvailable bool) (*FileInfo, error) {
	return c.inner.GetFileInfo(ctx, root, needAvailable)
}

func (c *ZgsClient) GetFileInfoByTxSeq(ctx context.Context, txSeq uint64) (*FileInfo, error) {
	return c.inner.GetFileInfoByTxSeq(ctx, txSeq)
}

func (c *ZgsClient) UploadSegment(ctx context.Context, segment SegmentWithProof) (*int, error) {
	return c.inner.UploadSegment(ctx, segment)
}

func (c *ZgsClient) UploadSegments(ctx context.Context, segments []SegmentWithProof) (*int, error) {
	return c.inner.UploadSegments(ctx, segments)
}

func (c *ZgsClient) UploadSegmentByTxSeq(ctx context.Context, segment SegmentWithProof, txSeq uint64) (*int, error) {
	return c.inner.UploadSegmentByTxSeq(ctx, segment, txSeq)
}

func (c *ZgsClient) UploadSegmentsByTxSeq(ctx context.Context, segments []SegmentWithProof, txSeq uint64) (*int, error) {
	log.Debugf("uploading %d segments to %s, txSeq=%d", len(segments), c.url, txSeq)
	return c.inner.UploadSegmentsByTxSeq(ctx, segments, txSeq)
}

func (c *ZgsClient) DownloadSegment(ctx context.Context, root merkle.Hash, startIndex, endIndex uint64) ([]byte, error) {
	return c.inner.DownloadSegment(ctx, root, startIndex, endIndex)
}

func (c *ZgsClient) DownloadSegmentByTxSeq(ctx context.Context, txSeq, startIndex, endIndex uint64) ([]byte, error) {
	return c.inner.DownloadSegmentByTxSeq(ctx, txSeq, startIndex, endIndex)
}

func (c *ZgsClient) DownloadSegmentWithProof(ctx context.Context, root merkle.Hash, index uint64) (*SegmentWithProof, error) {
	return c.inner.DownloadSegmentWithProof(ctx, root, index)
}

func (c *ZgsClient) DownloadSegmentWithProofByTxSeq(ctx context.Context, txSeq, index uint64) (*SegmentWithProof, error) {
	return c.inner.DownloadSegmentWithProofByTxSeq(ctx, txSeq, index)
}

func (c *ZgsClient) GetSectorProof(ctx context.Context, sectorIndex uint64, root merkle.Hash) (*merkle.Proof, error) {
	return c.inner.GetSectorProof(ctx, sectorIndex, root)
}
