// Package shard models the modulo-based partitioning of the logical
// segment-index space across storage nodes, and selects minimal node
// subsets that satisfy a replication requirement.
package shard

// ShardConfig is one node's announced responsibility: it holds every
// segment index i with i % NumShard == ShardID.
type ShardConfig struct {
	NumShard uint64 `json:"numShard"`
	ShardID  uint64 `json:"shardId"`
}

// IsValid reports whether the config is structurally sound: NumShard a
// positive power of two and ShardID within range.
func (c ShardConfig) IsValid() bool {
	return c.NumShard > 0 && c.NumShard&(c.NumShard-1) == 0 && c.ShardID < c.NumShard
}

// CoversSegment reports whether a node with this config holds the segment
// at the given logical index.
func (c ShardConfig) CoversSegment(index uint64) bool {
	return index%c.NumShard == c.ShardID
}

// ShardedNode is a storage node as announced by the indexer.
type ShardedNode struct {
	URL     string      `json:"url"`
	Config  ShardConfig `json:"config"`
	Latency int64       `json:"latency"`
	Since   int64       `json:"since"`
}
