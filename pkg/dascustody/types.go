package dascustody

import (
	"context"
	"time"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/peerid"
	"github.com/agenthands/dascustody/pkg/prune"
)

type CID = core.CID
type SubnetIndex = core.SubnetIndex
type ColumnIndex = core.ColumnIndex
type NodeID = nodeid.ID
type PeerID = peerid.ID

// Assignment is the custody duty of one node.
type Assignment struct {
	NodeID  NodeID
	PeerID  PeerID // empty unless derived from a peer identity
	Subnets []SubnetIndex
	Columns []ColumnIndex

	// Set by the registry only.
	Record   CID
	Deadline time.Time // zero when the entry never expires
}

// TrackMeta controls how an assignment is computed and retained.
type TrackMeta struct {
	// Count of custody subnets. Zero uses the profile default.
	Count uint64

	// Retention override:
	// - If Deadline != nil: use exactly that deadline.
	// - Else if TTL != nil: deadline = now + *TTL.
	// - Else if cfg.Prune.DefaultTTL > 0: deadline = now + cfg.Prune.DefaultTTL.
	// - Else: the entry never expires.
	Deadline *time.Time
	TTL      *time.Duration
}

// Registry persists computed assignments and indexes them by peer and
// column.
type Registry interface {
	Engine() *Engine

	Track(ctx context.Context, peerID string, meta TrackMeta) (Assignment, error)
	TrackNode(ctx context.Context, id NodeID, meta TrackMeta) (Assignment, error)

	Lookup(ctx context.Context, id NodeID) (Assignment, error)
	LookupPeer(ctx context.Context, peerID string) (Assignment, error)

	// NodesForColumn lists every tracked node custodying column, in
	// ascending order.
	NodesForColumn(ctx context.Context, column ColumnIndex) ([]NodeID, error)

	Forget(ctx context.Context, id NodeID) error
	Prune(ctx context.Context) (prune.Result, error)

	// Export writes every readable record to a new CAR snapshot at path.
	Export(ctx context.Context, path string) (ArchiveResult, error)
	Import(ctx context.Context, path string) (ArchiveResult, error)

	Close() error
}
