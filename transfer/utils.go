package transfer

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/zgstorage/zgs-client/node"
	"github.com/zgstorage/zgs-client/shard"
)

// ErrInvalidShardConfig signals that a target node announced a structurally
// invalid shard config.
var ErrInvalidShardConfig = xerrors.New("invalid shard config")

// getShardConfigs collects the shard configs of all target nodes, failing
// if any node is unreachable or announces an invalid config.
func getShardConfigs(ctx context.Context, clients []*node.ZgsClient) ([]shard.ShardConfig, error) {
	configs := make([]shard.ShardConfig, 0, len(clients))
	for _, client := range clients {
		config, err := client.GetShardConfig(ctx)
		if err != nil {
			return nil, xerrors.Errorf("getting shard config from %s: %w", client.URL(), err)
		}
		if config == nil || !config.IsValid() {
			return nil, xerrors.Errorf("%w: node %s", ErrInvalidShardConfig, client.URL())
		}
		configs = append(configs, *config)
	}
	return configs, nil
}

// checkExist verifies that path names a creatable, not yet existing file.
func checkExist(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		return xerrors.Errorf("parent directory %s does not exist", dir)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return xerrors.Errorf("%s is an existing directory", path)
	}
	return xerrors.Errorf("%s already exists, provide a file path which does not exist", path)
}
