package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// Key layout. Node ids are stored raw (32 bytes); columns and deadlines are
// big-endian so that iteration follows numeric order.
var (
	PrefixN2A = []byte("n2a:") // node -> stored record
	PrefixN2C = []byte("n2c:") // node -> record CID
	PrefixC2N = []byte("c2n:") // column || node -> empty
	PrefixP2N = []byte("p2n:") // peer id bytes -> node
	PrefixEx  = []byte("ex:")  // node -> deadline
)

// Catalog defines the interface for the embedded KV store behind the registry.
//
// Writers take a batch; a nil batch writes straight to the database with sync.
type Catalog interface {
	GetRecord(ctx context.Context, id nodeid.ID) (stored []byte, c core.CID, found bool, err error)
	PutRecord(batch *pebble.Batch, id nodeid.ID, c core.CID, stored []byte) error
	// IterateNodes visits every node with a stored record in ascending order.
	IterateNodes(ctx context.Context, fn func(id nodeid.ID) error) error

	GetNodeForPeer(ctx context.Context, peer []byte) (nodeid.ID, bool, error)
	PutNodeForPeer(batch *pebble.Batch, peer []byte, id nodeid.ID) error

	PutColumnNode(batch *pebble.Batch, column core.ColumnIndex, id nodeid.ID) error
	DeleteColumnNode(batch *pebble.Batch, column core.ColumnIndex, id nodeid.ID) error
	IterateColumn(ctx context.Context, column core.ColumnIndex, fn func(id nodeid.ID) error) error

	GetDeadline(ctx context.Context, id nodeid.ID) (time.Time, bool, error)
	PutDeadline(batch *pebble.Batch, id nodeid.ID, deadline time.Time) error
	IterateDeadlines(ctx context.Context, fn func(id nodeid.ID, deadline time.Time) error) error

	// DeleteNode removes the record, CID and deadline of id together with
	// the given peer mapping and column entries.
	DeleteNode(batch *pebble.Batch, id nodeid.ID, peer []byte, columns []core.ColumnIndex) error
	// PurgeNode removes every entry that references id, scanning the column
	// and peer indexes. Use it when the record can no longer be decoded.
	PurgeNode(ctx context.Context, batch *pebble.Batch, id nodeid.ID) error

	NewBatch() *pebble.Batch
	Close() error
}

type pebbleCatalog struct {
	db *pebble.DB
}

// Open opens a Pebble-based catalog in the specified directory.
func Open(dir string) (Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pebble db")
	}
	return &pebbleCatalog{db: db}, nil
}

func (c *pebbleCatalog) Close() error {
	return c.db.Close()
}

func (c *pebbleCatalog) NewBatch() *pebble.Batch {
	return c.db.NewBatch()
}

func (c *pebbleCatalog) get(key []byte) ([]byte, bool, error) {
	val, closer, err := c.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()

	res := make([]byte, len(val))
	copy(res, val)
	return res, true, nil
}

func (c *pebbleCatalog) set(batch *pebble.Batch, key, val []byte) error {
	if batch != nil {
		return batch.Set(key, val, nil)
	}
	return c.db.Set(key, val, pebble.Sync)
}

func (c *pebbleCatalog) del(batch *pebble.Batch, key []byte) error {
	if batch != nil {
		return batch.Delete(key, nil)
	}
	return c.db.Delete(key, pebble.Sync)
}

func (c *pebbleCatalog) GetRecord(ctx context.Context, id nodeid.ID) ([]byte, core.CID, bool, error) {
	stored, ok, err := c.get(nodeKey(PrefixN2A, id))
	if err != nil || !ok {
		return nil, core.CID{}, false, err
	}
	cid, ok, err := c.get(nodeKey(PrefixN2C, id))
	if err != nil {
		return nil, core.CID{}, false, err
	}
	if !ok {
		return nil, core.CID{}, false, errors.Wrapf(core.ErrCorrupt, "record for %s has no CID", id)
	}
	return stored, core.CID{Bytes: cid}, true, nil
}

func (c *pebbleCatalog) PutRecord(batch *pebble.Batch, id nodeid.ID, cid core.CID, stored []byte) error {
	if err := c.set(batch, nodeKey(PrefixN2A, id), stored); err != nil {
		return err
	}
	return c.set(batch, nodeKey(PrefixN2C, id), cid.Bytes)
}

func (c *pebbleCatalog) IterateNodes(ctx context.Context, fn func(id nodeid.ID) error) error {
	return c.iterate(ctx, PrefixN2A, func(key, _ []byte) error {
		id, err := nodeid.Parse(key[len(PrefixN2A):])
		if err != nil {
			return errors.Wrapf(core.ErrCorrupt, "invalid record key: %v", err)
		}
		return fn(id)
	})
}

func (c *pebbleCatalog) GetNodeForPeer(ctx context.Context, peer []byte) (nodeid.ID, bool, error) {
	val, ok, err := c.get(join(PrefixP2N, peer))
	if err != nil || !ok {
		return nodeid.ID{}, false, err
	}
	id, err := nodeid.Parse(val)
	if err != nil {
		return nodeid.ID{}, false, errors.Wrapf(core.ErrCorrupt, "invalid node id for peer: %v", err)
	}
	return id, true, nil
}

func (c *pebbleCatalog) PutNodeForPeer(batch *pebble.Batch, peer []byte, id nodeid.ID) error {
	return c.set(batch, join(PrefixP2N, peer), id.Bytes())
}

func (c *pebbleCatalog) PutColumnNode(batch *pebble.Batch, column core.ColumnIndex, id nodeid.ID) error {
	return c.set(batch, columnKey(column, id), nil)
}

func (c *pebbleCatalog) DeleteColumnNode(batch *pebble.Batch, column core.ColumnIndex, id nodeid.ID) error {
	return c.del(batch, columnKey(column, id))
}

func (c *pebbleCatalog) IterateColumn(ctx context.Context, column core.ColumnIndex, fn func(id nodeid.ID) error) error {
	prefix := columnPrefix(column)
	return c.iterate(ctx, prefix, func(key, _ []byte) error {
		id, err := nodeid.Parse(key[len(prefix):])
		if err != nil {
			return errors.Wrapf(core.ErrCorrupt, "invalid column index key: %v", err)
		}
		return fn(id)
	})
}

func (c *pebbleCatalog) GetDeadline(ctx context.Context, id nodeid.ID) (time.Time, bool, error) {
	val, ok, err := c.get(nodeKey(PrefixEx, id))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	if len(val) != 8 {
		return time.Time{}, false, errors.Wrap(core.ErrCorrupt, "invalid deadline length")
	}
	return time.Unix(int64(binary.BigEndian.Uint64(val)), 0), true, nil
}

func (c *pebbleCatalog) PutDeadline(batch *pebble.Batch, id nodeid.ID, deadline time.Time) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(deadline.Unix()))
	return c.set(batch, nodeKey(PrefixEx, id), val)
}

func (c *pebbleCatalog) IterateDeadlines(ctx context.Context, fn func(id nodeid.ID, deadline time.Time) error) error {
	return c.iterate(ctx, PrefixEx, func(key, val []byte) error {
		id, err := nodeid.Parse(key[len(PrefixEx):])
		if err != nil {
			return errors.Wrapf(core.ErrCorrupt, "invalid deadline key: %v", err)
		}
		if len(val) != 8 {
			return errors.Wrapf(core.ErrCorrupt, "invalid deadline length for %s", id)
		}
		return fn(id, time.Unix(int64(binary.BigEndian.Uint64(val)), 0))
	})
}

func (c *pebbleCatalog) DeleteNode(batch *pebble.Batch, id nodeid.ID, peer []byte, columns []core.ColumnIndex) error {
	for _, prefix := range [][]byte{PrefixN2A, PrefixN2C, PrefixEx} {
		if err := c.del(batch, nodeKey(prefix, id)); err != nil {
			return err
		}
	}
	if len(peer) > 0 {
		if err := c.del(batch, join(PrefixP2N, peer)); err != nil {
			return err
		}
	}
	for _, col := range columns {
		if err := c.DeleteColumnNode(batch, col, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *pebbleCatalog) PurgeNode(ctx context.Context, batch *pebble.Batch, id nodeid.ID) error {
	var stale [][]byte
	raw := id.Raw()

	err := c.iterate(ctx, PrefixC2N, func(key, _ []byte) error {
		if bytes.HasSuffix(key, raw[:]) {
			stale = append(stale, bytes.Clone(key))
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = c.iterate(ctx, PrefixP2N, func(key, val []byte) error {
		if bytes.Equal(val, raw[:]) {
			stale = append(stale, bytes.Clone(key))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range stale {
		if err := c.del(batch, key); err != nil {
			return err
		}
	}
	return c.DeleteNode(batch, id, nil, nil)
}

func (c *pebbleCatalog) iterate(ctx context.Context, prefix []byte, fn func(key, val []byte) error) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementByte(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// join copies its arguments into a fresh key so package-level prefixes are
// never appended to in place.
func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func nodeKey(prefix []byte, id nodeid.ID) []byte {
	raw := id.Raw()
	return join(prefix, raw[:])
}

func columnPrefix(column core.ColumnIndex) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], uint64(column))
	return join(PrefixC2N, be[:])
}

func columnKey(column core.ColumnIndex, id nodeid.ID) []byte {
	raw := id.Raw()
	return join(columnPrefix(column), raw[:])
}

func incrementByte(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			return res
		}
	}
	return nil
}
