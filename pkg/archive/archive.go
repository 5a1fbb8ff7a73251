// Package archive writes and reads registry snapshots as CARv2 files. Every
// block is one plain assignment record addressed by its record CID.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"github.com/ipld/go-car/v2/blockstore"
)

// Writer appends records to a new snapshot file.
type Writer interface {
	Put(ctx context.Context, c core.CID, record []byte) error
	// Count is the number of distinct records written so far.
	Count() int
	// Close finalizes the file. After Abort it is a no-op.
	Close() error
	// Abort discards the partial file.
	Abort() error
}

// finalize is replaced in tests.
var finalize = (*blockstore.ReadWrite).Finalize

type writer struct {
	path string

	mu    sync.Mutex
	bs    *blockstore.ReadWrite
	count int
	done  bool
}

// Create starts a snapshot at path, which must not exist yet.
func Create(path string) (Writer, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrapf(core.ErrInvalidInput, "snapshot %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot directory")
	}

	bs, err := blockstore.OpenReadWrite(path, []cid.Cid{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create snapshot %s", path)
	}
	return &writer{path: path, bs: bs}, nil
}

func (w *writer) Put(ctx context.Context, c core.CID, record []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.Wrap(core.ErrClosed, "snapshot writer")
	}

	id, err := cid.Cast(c.Bytes)
	if err != nil {
		return errors.Wrapf(core.ErrInvalidInput, "invalid CID: %v", err)
	}

	has, err := w.bs.Has(ctx, id)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	blk, err := blocks.NewBlockWithCid(record, id)
	if err != nil {
		return errors.Wrapf(core.ErrInvalidInput, "record block: %v", err)
	}
	if err := w.bs.Put(ctx, blk); err != nil {
		return errors.Wrapf(err, "failed to write %s", id)
	}
	w.count++
	return nil
}

func (w *writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	if err := finalize(w.bs); err != nil {
		// an unfinalized CARv2 file has no valid header; leave nothing behind
		if rmErr := os.Remove(w.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.CombineErrors(err, rmErr)
		}
		return errors.Wrap(err, "failed to finalize snapshot")
	}
	return nil
}

func (w *writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	w.bs.Discard()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read calls fn for every block of the snapshot at path, in file order.
// Reading stops at the first error returned by fn.
func Read(ctx context.Context, path string, fn func(c core.CID, record []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(core.ErrNotFound, "snapshot %s", path)
		}
		return errors.Wrapf(err, "failed to open snapshot %s", path)
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f)
	if err != nil {
		return errors.Wrapf(core.ErrCorrupt, "snapshot %s: %v", path, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		blk, err := br.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrapf(core.ErrCorrupt, "failed to read block from %s: %v", path, err)
		}

		if err := fn(core.CID{Bytes: blk.Cid().Bytes()}, blk.RawData()); err != nil {
			return err
		}
	}
}
