package indexer

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/zgstorage/zgs-client/merkle"
	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
)

type fakeIndexer struct {
	nodes     ShardedNodes
	locations map[string]Location
	files     map[merkle.Hash][]shard.ShardedNode
}

func (f *fakeIndexer) GetShardedNodes(ctx context.Context) (ShardedNodes, error) {
	return f.nodes, nil
}

func (f *fakeIndexer) GetNodeLocations(ctx context.Context) (map[string]Location, error) {
	return f.locations, nil
}

func (f *fakeIndexer) GetFileLocations(ctx context.Context, root merkle.Hash) ([]shard.ShardedNode, error) {
	return f.files[root], nil
}

func startIndexer(t *testing.T, fake *fakeIndexer) *Client {
	t.Helper()

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("indexer", fake)
	for _, method := range []string{"GetShardedNodes", "GetNodeLocations", "GetFileLocations"} {
		rpcServer.AliasMethod(node.MethodNameFormatter("indexer", method), "indexer."+method)
	}

	server := httptest.NewServer(rpcServer)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestGetShardedNodes(t *testing.T) {
	fake := &fakeIndexer{
		nodes: ShardedNodes{
			Trusted: []shard.ShardedNode{
				{URL: "http://n1", Config: shard.ShardConfig{NumShard: 1, ShardID: 0}, Latency: 12},
			},
			Discovered: []shard.ShardedNode{
				{URL: "http://n2", Config: shard.ShardConfig{NumShard: 2, ShardID: 1}},
			},
		},
	}
	client := startIndexer(t, fake)

	nodes, err := client.GetShardedNodes(context.Background())
	require.NoError(t, err)
	require.Equal(t, fake.nodes, nodes)
}

func TestGetNodeLocations(t *testing.T) {
	fake := &fakeIndexer{
		locations: map[string]Location{
			"http://n1": {Latitude: 52.5, Longitude: 13.4, Country: "DE", City: "Berlin"},
		},
	}
	client := startIndexer(t, fake)

	locations, err := client.GetNodeLocations(context.Background())
	require.NoError(t, err)
	require.Equal(t, fake.locations, locations)
}

func TestGetFileLocations(t *testing.T) {
	root := merkle.Keccak256([]byte("file"))
	fake := &fakeIndexer{
		files: map[merkle.Hash][]shard.ShardedNode{
			root: {{URL: "http://n1", Config: shard.ShardConfig{NumShard: 1, ShardID: 0}}},
		},
	}
	client := startIndexer(t, fake)

	nodes, err := client.GetFileLocations(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "http://n1", nodes[0].URL)

	nodes, err = client.GetFileLocations(context.Background(), merkle.Keccak256([]byte("other")))
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func TestSelectNodesInsufficientReplicas(t *testing.T) {
	// only half the shard space is covered by trusted nodes
	fake := &fakeIndexer{
		nodes: ShardedNodes{
			Trusted: []shard.ShardedNode{
				{URL: "http://n1", Config: shard.ShardConfig{NumShard: 2, ShardID: 0}},
			},
		},
	}
	client := startIndexer(t, fake)

	_, err := client.SelectNodes(context.Background(), 1)
	require.ErrorIs(t, err, shard.ErrInsufficientReplicas)
}

func TestSelectNodesDialsSelection(t *testing.T) {
	fake := &fakeIndexer{
		nodes: ShardedNodes{
			Trusted: []shard.ShardedNode{
				{URL: "http://127.0.0.1:10001", Config: shard.ShardConfig{NumShard: 2, ShardID: 0}},
				{URL: "http://127.0.0.1:10002", Config: shard.ShardConfig{NumShard: 2, ShardID: 1}},
				{URL: "http://127.0.0.1:10003", Config: shard.ShardConfig{NumShard: 4, ShardID: 0}},
			},
		},
	}
	client := startIndexer(t, fake)

	clients, err := client.SelectNodes(context.Background(), 1)
	require.NoError(t, err)
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	// the two half-shard nodes suffice, the quarter shard is redundant
	require.Len(t, clients, 2)
	require.Equal(t, "http://127.0.0.1:10001", clients[0].URL())
	require.Equal(t, "http://127.0.0.1:10002", clients[1].URL())
}
