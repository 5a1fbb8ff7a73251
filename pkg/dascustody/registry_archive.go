package dascustody

import (
	"context"

	"github.com/agenthands/dascustody/pkg/archive"
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// ArchiveResult reports the outcome of Export or Import.
type ArchiveResult struct {
	Records int // written or imported
	Skipped int // unreadable entries left out of an export
}

func (r *registry) Export(ctx context.Context, path string) (res ArchiveResult, err error) {
	if err := r.enter(); err != nil {
		return res, err
	}
	defer r.leave()

	w, err := archive.Create(path)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = w.Abort()
		}
	}()

	// Writers wait until the snapshot is complete.
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err = r.catalog.IterateNodes(ctx, func(id nodeid.ID) error {
		plain, cid, _, err := r.load(ctx, id)
		if errors.Is(err, core.ErrCorrupt) {
			res.Skipped++
			r.log.Warn("skipped unreadable assignment", zap.Stringer("node", id), zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		return w.Put(ctx, cid, plain)
	})
	if err != nil {
		return ArchiveResult{}, err
	}
	if err := w.Close(); err != nil {
		return ArchiveResult{}, err
	}

	res.Records = w.Count()
	r.log.Info("exported assignments",
		zap.String("path", path),
		zap.Int("records", res.Records),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// Import stores every record of a snapshot. Records must match the
// registry's profile layout. Deadlines are not part of a snapshot, so
// imported entries get the default retention.
//
// The snapshot is applied in a single batch: if any entry fails
// verification nothing is stored. When a node appears more than once the
// last entry wins.
func (r *registry) Import(ctx context.Context, path string) (ArchiveResult, error) {
	if err := r.enter(); err != nil {
		return ArchiveResult{}, err
	}
	defer r.leave()

	type entry struct {
		a      Assignment
		stored []byte
		cid    CID
	}
	var (
		entries []entry
		index   = make(map[nodeid.ID]int)
	)

	err := archive.Read(ctx, path, func(cid CID, plain []byte) error {
		if err := r.cidHub.Verify(cid, plain); err != nil {
			return err
		}
		rec, err := r.records.Decode(plain)
		if err != nil {
			return err
		}
		a, err := fromRecord(rec)
		if err != nil {
			return err
		}
		stored, err := r.transform.Encode(plain)
		if err != nil {
			return err
		}
		e := entry{a: a, stored: stored, cid: cid}
		if i, ok := index[a.NodeID]; ok {
			entries[i] = e
			return nil
		}
		index[a.NodeID] = len(entries)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return ArchiveResult{}, errors.Wrapf(err, "import %s", path)
	}

	deadline := r.computeDeadline(TrackMeta{})

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	batch := r.catalog.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return ArchiveResult{}, err
		}
		if err := r.stage(ctx, batch, e.a, e.stored, e.cid, deadline); err != nil {
			return ArchiveResult{}, errors.Wrapf(err, "import %s", path)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ArchiveResult{}, errors.Wrapf(err, "import %s", path)
	}

	res := ArchiveResult{Records: len(entries)}
	r.log.Info("imported assignments",
		zap.String("path", path),
		zap.Int("records", res.Records))
	return res, nil
}
