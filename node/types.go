package node

import (
	"github.com/zgstorage/zgs-client/merkle"
)

// Status is a storage node's sync status.
type Status struct {
	ConnectedPeers uint64 `json:"connectedPeers"`
	LogSyncHeight  uint64 `json:"logSyncHeight"`
	LogSyncBlock   string `json:"logSyncBlock"`
}

// Transaction is the on-chain log entry of a submitted file, as reported by
// a storage node.
type Transaction struct {
	Seq             uint64 `json:"seq"`
	Size            uint64 `json:"size"`
	StartEntryIndex uint64 `json:"startEntryIndex"`
}

// FileInfo is a storage node's view of one file. Consumed read-only to
// compute chunk and segment ranges.
type FileInfo struct {
	Tx             Transaction `json:"tx"`
	Finalized      bool        `json:"finalized"`
	IsCached       bool        `json:"isCached"`
	Pruned         bool        `json:"pruned"`
	UploadedSegNum uint64      `json:"uploadedSegNum"`
}

// SegmentWithProof is the wire unit transferred to and from a storage node.
// Data is base64 on the wire, which Go's JSON encoding of []byte produces
// natively.
type SegmentWithProof struct {
	Root     merkle.Hash  `json:"root"`
	Data     []byte       `json:"data"`
	Index    uint64       `json:"index"`
	Proof    merkle.Proof `json:"proof"`
	FileSize uint64       `json:"fileSize"`
}
