// Package indexer provides the JSON-RPC client for the network indexer and
// convenience entry points that wire node selection, upload and download
// together.
package indexer

import (
	"context"
	"sort"

	"github.com/filecoin-project/go-jsonrpc"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/contract"
	"github.com/zgstorage/zgs-client/file"
	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
	"github.com/zgstorage/zgs-client/transfer"
)

var log = logging.Logger("indexer")

// ShardedNodes is the indexer's node listing, split by trust level.
type ShardedNodes struct {
	Trusted    []shard.ShardedNode `json:"trusted"`
	Discovered []shard.ShardedNode `json:"discovered"`
}

// Location is the indexer's geographic annotation of a node, keyed by node
// URL in GetNodeLocations.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
}

// Client is an indexer RPC client.
type Client struct {
	url    string
	closer jsonrpc.ClientCloser

	inner struct {
		GetShardedNodes  func(ctx context.Context) (ShardedNodes, error)
		GetNodeLocations func(ctx context.Context) (map[string]Location, error)
		GetFileLocations func(ctx context.Context, root merkle.Hash) ([]shard.ShardedNode, error)
	}
}

// NewClient dials an indexer over HTTP.
func NewClient(ctx context.Context, url string) (*Client, error) {
	c := &Client{url: url}
	closer, err := jsonrpc.NewMergeClient(ctx, url, "indexer",
		[]interface{}{&c.inner},
		nil,
		jsonrpc.WithMethodNameFormatter(node.MethodNameFormatter),
	)
	if err != nil {
		return nil, xerrors.Errorf("dialing indexer %s: %w", url, err)
	}
	c.closer = closer
	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) GetShardedNodes(ctx context.Context) (ShardedNodes, error) {
	return c.inner.GetShardedNodes(ctx)
}

func (c *Client) GetNodeLocations(ctx context.Context) (map[string]Location, error) {
	return c.inner.GetNodeLocations(ctx)
}

// GetFileLocations lists the nodes known to hold the given root hash.
func (c *Client) GetFileLocations(ctx context.Context, root merkle.Hash) ([]shard.ShardedNode, error) {
	return c.inner.GetFileLocations(ctx, root)
}

// SelectNodes picks a minimal trusted node subset satisfying the expected
// replication factor and dials each of them.
func (c *Client) SelectNodes(ctx context.Context, expectedReplica uint64) ([]*node.ZgsClient, error) {
	nodes, err := c.GetShardedNodes(ctx)
	if err != nil {
		return nil, xerrors.Errorf("getting sharded nodes: %w", err)
	}

	trusted, ok := shard.Select(nodes.Trusted, expectedReplica)
	if !ok {
		return nil, shard.ErrInsufficientReplicas
	}

	urls := make([]string, 0, len(trusted))
	for _, n := range trusted {
		urls = append(urls, n.URL)
	}
	return node.NewZgsClients(ctx, urls)
}

// NewUploaderFromIndexerNodes creates an uploader over a freshly selected
// node set. The caller keeps ownership of the uploader and should Close it.
func (c *Client) NewUploaderFromIndexerNodes(ctx context.Context, flow contract.Flow, expectedReplica uint64) (*transfer.Uploader, error) {
	clients, err := c.SelectNodes(ctx, expectedReplica)
	if err != nil {
		return nil, err
	}

	status, err := clients[0].GetStatus(ctx)
	if err != nil {
		for _, client := range clients {
			client.Close()
		}
		return nil, xerrors.Errorf("getting status from the selected node: %w", err)
	}
	log.Infow("selected storage nodes", "count", len(clients), "logSyncHeight", status.LogSyncHeight)

	return transfer.NewUploader(flow, clients)
}

// Upload uploads a file through nodes selected from the indexer.
func (c *Client) Upload(ctx context.Context, f *file.File, flow contract.Flow, opt transfer.UploadOption, retryOpts ...transfer.RetryOption) (*transfer.UploadResult, error) {
	expectedReplica := opt.ExpectedReplica
	if expectedReplica == 0 {
		expectedReplica = 1
		opt.ExpectedReplica = 1
	}

	uploader, err := c.NewUploaderFromIndexerNodes(ctx, flow, expectedReplica)
	if err != nil {
		return nil, err
	}
	defer uploader.Close()

	return uploader.Upload(ctx, f, opt, retryOpts...)
}

// Download locates the file via the indexer and downloads it. When the
// per-file location lookup yields nothing it falls back to the generic node
// listing.
func (c *Client) Download(ctx context.Context, root merkle.Hash, outputPath string, withProof bool) error {
	var urls []string

	locations, err := c.GetFileLocations(ctx, root)
	if err != nil {
		log.Warnf("file location lookup failed, falling back to node listing: %s", err)
	}
	for _, n := range locations {
		urls = append(urls, n.URL)
	}

	if len(urls) == 0 {
		nodeLocations, err := c.GetNodeLocations(ctx)
		if err != nil {
			return xerrors.Errorf("getting node locations: %w", err)
		}
		for url := range nodeLocations {
			urls = append(urls, url)
		}
		sort.Strings(urls)
	}

	if len(urls) == 0 {
		return transfer.ErrFileNotFound
	}

	clients, err := node.NewZgsClients(ctx, urls)
	if err != nil {
		return err
	}

	downloader, err := transfer.NewDownloader(clients)
	if err != nil {
		return err
	}
	defer downloader.Close()

	return downloader.Download(ctx, root, outputPath, withProof)
}
