package dascustody

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/agenthands/dascustody/pkg/catalog"
	"github.com/agenthands/dascustody/pkg/cidutil"
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/peerid"
	"github.com/agenthands/dascustody/pkg/prune"
	"github.com/agenthands/dascustody/pkg/record"
	"github.com/agenthands/dascustody/pkg/transform"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

type registry struct {
	cfg    Config
	engine *Engine
	log    *zap.Logger

	cidHub    cidutil.Builder
	records   record.Codec
	catalog   catalog.Catalog
	transform transform.Transform
	pruner    prune.Runner

	closeMu sync.RWMutex // held shared by every call, exclusively by Close
	closed  bool
	writeMu sync.Mutex // single writer; shared with the pruner
}

// Option configures OpenRegistry.
type Option func(*registry)

// WithLogger sets the registry logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *registry) { r.log = l }
}

// OpenRegistry opens (or creates) the registry under cfg.Dir and starts the
// background pruner when cfg.Prune.Enabled is set.
func OpenRegistry(ctx context.Context, cfg Config, opts ...Option) (Registry, error) {
	if cfg.Catalog.Dir == "" {
		if cfg.Dir == "" {
			return nil, errors.Wrap(core.ErrInvalidConfig, "registry directory is required")
		}
		cfg.Catalog.Dir = filepath.Join(cfg.Dir, "catalog")
	}

	engine, err := New(cfg.Profile)
	if err != nil {
		return nil, err
	}

	tr, err := transform.New(cfg.Transform)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(cfg.Catalog.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog")
	}

	r := newRegistry(cfg, engine, cat, tr, opts...)
	r.pruner.Start(ctx)

	r.log.Debug("registry opened",
		zap.String("dir", cfg.Catalog.Dir),
		zap.String("profile", cfg.Profile.Name),
		zap.String("transform", tr.Name()))
	return r, nil
}

func newRegistry(cfg Config, engine *Engine, cat catalog.Catalog, tr transform.Transform, opts ...Option) *registry {
	r := &registry{
		cfg:       cfg,
		engine:    engine,
		log:       zap.NewNop(),
		cidHub:    cidutil.NewBuilder(),
		records:   record.NewCodec(engine.selector),
		catalog:   cat,
		transform: tr,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pruner = prune.NewRunner(cfg.Prune, cat, r.records, tr,
		prune.WithLogger(r.log.Named("prune")),
		prune.WithLocker(&r.writeMu))
	return r
}

func (r *registry) Engine() *Engine {
	return r.engine
}

// enter guards a call against a concurrent or completed Close.
func (r *registry) enter() error {
	r.closeMu.RLock()
	if r.closed {
		r.closeMu.RUnlock()
		return core.ErrClosed
	}
	return nil
}

func (r *registry) leave() {
	r.closeMu.RUnlock()
}

func (r *registry) Close() error {
	r.pruner.Stop()

	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	r.closed = true
	return r.catalog.Close()
}

func (r *registry) Track(ctx context.Context, peerID string, meta TrackMeta) (Assignment, error) {
	pid, err := peerid.Decode(peerID)
	if err != nil {
		return Assignment{}, err
	}
	id, err := r.engine.resolver.NodeIDFromPeer(pid)
	if err != nil {
		return Assignment{}, err
	}
	return r.track(ctx, id, pid, meta)
}

func (r *registry) TrackNode(ctx context.Context, id NodeID, meta TrackMeta) (Assignment, error) {
	return r.track(ctx, id, "", meta)
}

func (r *registry) track(ctx context.Context, id NodeID, pid PeerID, meta TrackMeta) (Assignment, error) {
	if meta.Deadline != nil && meta.TTL != nil {
		return Assignment{}, errors.Wrap(core.ErrInvalidInput, "deadline and TTL are mutually exclusive")
	}
	if err := r.enter(); err != nil {
		return Assignment{}, err
	}
	defer r.leave()

	var opts []QueryOption
	if meta.Count > 0 {
		opts = append(opts, WithCount(meta.Count))
	}
	a, err := r.engine.Assignment(id, opts...)
	if err != nil {
		return Assignment{}, err
	}
	a.PeerID = pid

	plain, err := r.records.Encode(r.toRecord(a))
	if err != nil {
		return Assignment{}, err
	}
	cid, err := r.cidHub.RecordCID(plain)
	if err != nil {
		return Assignment{}, err
	}

	deadline := r.computeDeadline(meta)
	if err := r.put(ctx, a, plain, cid, deadline); err != nil {
		return Assignment{}, err
	}

	a.Record = cid
	a.Deadline = deadline
	r.log.Debug("tracked assignment",
		zap.Stringer("node", id),
		zap.Int("subnets", len(a.Subnets)),
		zap.Time("deadline", deadline))
	return a, nil
}

// put replaces every catalog entry of a.NodeID with the given record in one
// batch.
func (r *registry) put(ctx context.Context, a Assignment, plain []byte, cid CID, deadline time.Time) error {
	stored, err := r.transform.Encode(plain)
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	batch := r.catalog.NewBatch()
	defer batch.Close()

	if err := r.stage(ctx, batch, a, stored, cid, deadline); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// stage adds the writes that replace a's node entry to batch. The caller
// holds writeMu. stored is the transformed record body.
func (r *registry) stage(ctx context.Context, batch *pebble.Batch, a Assignment, stored []byte, cid CID, deadline time.Time) error {
	// Stage removal of the previous entry first; the sets below win.
	if _, err := prune.RemoveNode(ctx, batch, r.catalog, r.records, r.transform, a.NodeID); err != nil {
		return errors.Wrapf(err, "replace %s", a.NodeID)
	}

	if err := r.catalog.PutRecord(batch, a.NodeID, cid, stored); err != nil {
		return err
	}
	if a.PeerID != "" {
		if err := r.catalog.PutNodeForPeer(batch, a.PeerID.Bytes(), a.NodeID); err != nil {
			return err
		}
	}
	for _, col := range a.Columns {
		if err := r.catalog.PutColumnNode(batch, col, a.NodeID); err != nil {
			return err
		}
	}
	if !deadline.IsZero() {
		if err := r.catalog.PutDeadline(batch, a.NodeID, deadline); err != nil {
			return err
		}
	}
	return nil
}

// computeDeadline truncates to seconds, the catalog's resolution.
func (r *registry) computeDeadline(meta TrackMeta) time.Time {
	var d time.Time
	switch {
	case meta.Deadline != nil:
		d = *meta.Deadline
	case meta.TTL != nil:
		d = time.Now().Add(*meta.TTL)
	case r.cfg.Prune.DefaultTTL > 0:
		d = time.Now().Add(r.cfg.Prune.DefaultTTL)
	default:
		return time.Time{}
	}
	return time.Unix(d.Unix(), 0)
}

func (r *registry) toRecord(a Assignment) *record.AssignmentV1 {
	rec := &record.AssignmentV1{
		Version:      record.Version,
		Profile:      r.engine.cfg.Name,
		TotalSubnets: r.engine.cfg.TotalSubnets,
		TotalColumns: r.engine.cfg.TotalColumns,
		NodeID:       a.NodeID.Bytes(),
		Count:        uint64(len(a.Subnets)),
		Subnets:      make([]uint64, len(a.Subnets)),
		Columns:      make([]uint64, len(a.Columns)),
	}
	if a.PeerID != "" {
		rec.PeerID = a.PeerID.Bytes()
	}
	for i, s := range a.Subnets {
		rec.Subnets[i] = uint64(s)
	}
	for i, c := range a.Columns {
		rec.Columns[i] = uint64(c)
	}
	return rec
}

func (r *registry) Lookup(ctx context.Context, id NodeID) (Assignment, error) {
	if err := r.enter(); err != nil {
		return Assignment{}, err
	}
	defer r.leave()
	return r.lookup(ctx, id)
}

func (r *registry) lookup(ctx context.Context, id NodeID) (Assignment, error) {
	_, cid, rec, err := r.load(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	a, err := fromRecord(rec)
	if err != nil {
		return Assignment{}, err
	}
	a.Record = cid

	deadline, ok, err := r.catalog.GetDeadline(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if ok {
		a.Deadline = deadline
	}
	return a, nil
}

// load reads, verifies and decodes the record stored for id.
func (r *registry) load(ctx context.Context, id NodeID) ([]byte, CID, *record.AssignmentV1, error) {
	stored, cid, ok, err := r.catalog.GetRecord(ctx, id)
	if err != nil {
		return nil, CID{}, nil, err
	}
	if !ok {
		return nil, CID{}, nil, errors.Wrapf(core.ErrNotFound, "node %s", id)
	}

	plain, err := r.transform.Decode(stored)
	if err != nil {
		return nil, CID{}, nil, err
	}
	if err := r.cidHub.Verify(cid, plain); err != nil {
		return nil, CID{}, nil, err
	}
	rec, err := r.records.Decode(plain)
	if err != nil {
		return nil, CID{}, nil, err
	}
	if !bytes.Equal(rec.NodeID, id[:]) {
		return nil, CID{}, nil, errors.Wrapf(core.ErrCorrupt, "record under %s names another node", id)
	}
	return plain, cid, rec, nil
}

// fromRecord expects a record accepted by the codec.
func fromRecord(rec *record.AssignmentV1) (Assignment, error) {
	id, err := nodeid.Parse(rec.NodeID)
	if err != nil {
		return Assignment{}, errors.Wrapf(core.ErrCorrupt, "record node id: %v", err)
	}
	a := Assignment{
		NodeID:  id,
		Subnets: make([]SubnetIndex, len(rec.Subnets)),
		Columns: make([]ColumnIndex, len(rec.Columns)),
	}
	for i, s := range rec.Subnets {
		a.Subnets[i] = SubnetIndex(s)
	}
	for i, c := range rec.Columns {
		a.Columns[i] = ColumnIndex(c)
	}
	if len(rec.PeerID) > 0 {
		if a.PeerID, err = peerid.FromBytes(rec.PeerID); err != nil {
			return Assignment{}, errors.Wrapf(core.ErrCorrupt, "record for %s: %v", id, err)
		}
	}
	return a, nil
}

func (r *registry) LookupPeer(ctx context.Context, peerID string) (Assignment, error) {
	pid, err := peerid.Decode(peerID)
	if err != nil {
		return Assignment{}, err
	}
	if err := r.enter(); err != nil {
		return Assignment{}, err
	}
	defer r.leave()

	id, ok, err := r.catalog.GetNodeForPeer(ctx, pid.Bytes())
	if err != nil {
		return Assignment{}, err
	}
	if !ok {
		return Assignment{}, errors.Wrapf(core.ErrNotFound, "peer %s", pid)
	}
	return r.lookup(ctx, id)
}

func (r *registry) NodesForColumn(ctx context.Context, column ColumnIndex) ([]NodeID, error) {
	if err := r.engine.columnInRange(column); err != nil {
		return nil, err
	}
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.leave()

	var nodes []NodeID
	err := r.catalog.IterateColumn(ctx, column, func(id nodeid.ID) error {
		nodes = append(nodes, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *registry) Forget(ctx context.Context, id NodeID) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, _, ok, err := r.catalog.GetRecord(ctx, id)
	if err != nil && !errors.Is(err, core.ErrCorrupt) {
		return err
	}
	if err == nil && !ok {
		return errors.Wrapf(core.ErrNotFound, "node %s", id)
	}

	batch := r.catalog.NewBatch()
	defer batch.Close()

	purged, err := prune.RemoveNode(ctx, batch, r.catalog, r.records, r.transform, id)
	if err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return err
	}
	if purged {
		r.log.Warn("forgot unreadable assignment", zap.Stringer("node", id))
	}
	return nil
}

func (r *registry) Prune(ctx context.Context) (prune.Result, error) {
	if err := r.enter(); err != nil {
		return prune.Result{}, err
	}
	defer r.leave()
	return r.pruner.RunOnce(ctx)
}
