package shard

import (
	"sort"

	"golang.org/x/xerrors"
)

// ErrInsufficientReplicas signals that no subset of the candidate nodes can
// satisfy the requested replication factor. Selection failures are
// structural and are never retried.
var ErrInsufficientReplicas = xerrors.New("cannot select a subset of nodes that meets the replication requirement")

// segmentTreeNode is a node of the implicit binary trie over the shard
// address space. replica counts complete coverings of this subtree;
// lazyTags holds replica increments not yet pushed to the children.
type segmentTreeNode struct {
	children *[2]*segmentTreeNode
	numShard uint64
	replica  uint64
	lazyTags uint64
}

// pushdown materializes the children (each at double the shard granularity)
// and propagates pending tags to both.
func (n *segmentTreeNode) pushdown() {
	if n.children == nil {
		n.children = &[2]*segmentTreeNode{
			{numShard: n.numShard << 1},
			{numShard: n.numShard << 1},
		}
	}
	for _, child := range n.children {
		child.replica += n.lazyTags
		child.lazyTags += n.lazyTags
	}
	n.lazyTags = 0
}

// insert adds one (numShard, shardID) assignment if it still contributes to
// the expected replica count. A subtree counts a replica only once both
// halves of its address space are covered, hence the min aggregation on the
// way back up.
func (n *segmentTreeNode) insert(numShard, shardID, expectedReplica uint64) bool {
	if n.replica >= expectedReplica {
		return false
	}

	if n.numShard == numShard {
		n.replica++
		n.lazyTags++
		return true
	}

	n.pushdown()
	inserted := n.children[shardID%2].insert(numShard, shardID>>1, expectedReplica)
	n.replica = min(n.children[0].replica, n.children[1].replica)

	return inserted
}

// Select chooses a minimal subset of candidates that jointly provides
// expectedReplica complete coverings of the segment index space. Candidates
// are considered in (numShard, shardId) ascending order; downstream systems
// depend on this tie-break, do not change it. Returns the accepted subset
// and whether the target was reached.
func Select(nodes []ShardedNode, expectedReplica uint64) ([]ShardedNode, bool) {
	if expectedReplica == 0 {
		return nil, false
	}

	sorted := make([]ShardedNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Config.NumShard != sorted[j].Config.NumShard {
			return sorted[i].Config.NumShard < sorted[j].Config.NumShard
		}
		return sorted[i].Config.ShardID < sorted[j].Config.ShardID
	})

	root := &segmentTreeNode{numShard: 1}
	var selected []ShardedNode

	for _, node := range sorted {
		if root.insert(node.Config.NumShard, node.Config.ShardID, expectedReplica) {
			selected = append(selected, node)
		}
		if root.replica >= expectedReplica {
			return selected, true
		}
	}

	return nil, false
}

// CheckReplica reports whether the given shard configs alone could satisfy
// the replication requirement.
func CheckReplica(configs []ShardConfig, expectedReplica uint64) bool {
	nodes := make([]ShardedNode, 0, len(configs))
	for _, config := range configs {
		nodes = append(nodes, ShardedNode{Config: config})
	}
	_, ok := Select(nodes, expectedReplica)
	return ok
}
