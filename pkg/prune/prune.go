// Package prune removes registry entries whose deadline has passed.
package prune

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/dascustody/pkg/catalog"
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/record"
	"github.com/agenthands/dascustody/pkg/transform"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

const defaultRunEvery = time.Hour

// Result contains statistics from a prune run.
type Result struct {
	Expired int // entries removed
	Purged  int // of which had an unreadable record
}

// Runner defines the expiry interface.
type Runner interface {
	RunOnce(ctx context.Context) (Result, error)
	Start(ctx context.Context)
	Stop()
}

type Option func(*runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *runner) { r.log = l }
}

// WithLocker makes each run hold l while it deletes, so that writers
// sharing l never interleave with a prune.
func WithLocker(l sync.Locker) Option {
	return func(r *runner) { r.writeMu = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *runner) { r.now = now }
}

type runner struct {
	cfg     core.PruneConfig
	cat     catalog.Catalog
	records record.Codec
	tr      transform.Transform

	log     *zap.Logger
	writeMu sync.Locker
	now     func() time.Time

	mu      sync.Mutex // serialises runs
	stateMu sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewRunner creates a new prune runner.
func NewRunner(
	cfg core.PruneConfig,
	cat catalog.Catalog,
	records record.Codec,
	tr transform.Transform,
	opts ...Option,
) Runner {
	if cfg.RunEvery <= 0 {
		cfg.RunEvery = defaultRunEvery
	}
	r := &runner{
		cfg:     cfg,
		cat:     cat,
		records: records,
		tr:      tr,
		log:     zap.NewNop(),
		writeMu: &sync.Mutex{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runner) RunOnce(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result
	now := r.now()

	var expired []nodeid.ID
	err := r.cat.IterateDeadlines(ctx, func(id nodeid.ID, deadline time.Time) error {
		if now.After(deadline) {
			expired = append(expired, id)
		}
		return nil
	})
	if err != nil {
		return res, errors.Wrap(err, "scan deadlines")
	}
	if len(expired) == 0 {
		return res, nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	batch := r.cat.NewBatch()
	defer batch.Close()

	for _, id := range expired {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// the entry may have been re-tracked since the scan
		deadline, ok, err := r.cat.GetDeadline(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if !ok || !now.After(deadline) {
			continue
		}

		purged, err := RemoveNode(ctx, batch, r.cat, r.records, r.tr, id)
		if err != nil {
			return Result{}, errors.Wrapf(err, "remove %s", id)
		}
		res.Expired++
		if purged {
			res.Purged++
			r.log.Warn("purged unreadable assignment", zap.Stringer("node", id))
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return Result{}, errors.Wrap(err, "commit prune batch")
	}

	r.log.Info("pruned expired assignments",
		zap.Int("expired", res.Expired),
		zap.Int("purged", res.Purged))
	return res, nil
}

// RemoveNode stages the removal of every catalog entry of id into batch.
// When the stored record cannot be read the indexes are scanned instead,
// and purged is true.
func RemoveNode(
	ctx context.Context,
	batch *pebble.Batch,
	cat catalog.Catalog,
	records record.Codec,
	tr transform.Transform,
	id nodeid.ID,
) (purged bool, err error) {
	stored, _, found, err := cat.GetRecord(ctx, id)
	if err != nil && !errors.Is(err, core.ErrCorrupt) {
		return false, err
	}
	if err == nil && !found {
		return false, cat.DeleteNode(batch, id, nil, nil)
	}

	var a *record.AssignmentV1
	if err == nil {
		var plain []byte
		if plain, err = tr.Decode(stored); err == nil {
			a, err = records.Decode(plain)
		}
	}
	if err != nil {
		return true, cat.PurgeNode(ctx, batch, id)
	}

	columns := make([]core.ColumnIndex, len(a.Columns))
	for i, c := range a.Columns {
		columns[i] = core.ColumnIndex(c)
	}
	return false, cat.DeleteNode(batch, id, a.PeerID, columns)
}

func (r *runner) Start(ctx context.Context) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.running || !r.cfg.Enabled {
		return
	}
	r.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	r.stopCh, r.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.cfg.RunEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					r.log.Error("prune run failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop ends the background loop and waits for an in-flight run to finish.
func (r *runner) Stop() {
	r.stateMu.Lock()
	if !r.running {
		r.stateMu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	r.stateMu.Unlock()

	<-done
}
