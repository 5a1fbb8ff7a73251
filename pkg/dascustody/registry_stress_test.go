package dascustody_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agenthands/dascustody/internal/testkit"
	"github.com/agenthands/dascustody/pkg/dascustody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConcurrentTrackLookup_Race(t *testing.T) {
	reg := openTestRegistry(t, dascustody.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const numWriters = 8
	const peersPerWriter = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	var tracked []dascustody.Assignment

	// Writers
	for w := 0; w < numWriters; w++ {
		wg.Add(1)
		go func(writerID int) {
			defer wg.Done()
			rng := testkit.RNG(int64(100 + writerID))

			for i := 0; i < peersPerWriter; i++ {
				peer := testkit.RandomPeer(rng)
				a, err := reg.Track(ctx, peer.ID.String(), dascustody.TrackMeta{})
				if err != nil {
					t.Errorf("writer %d failed on peer %d: %v", writerID, i, err)
					return
				}
				mu.Lock()
				tracked = append(tracked, a)
				mu.Unlock()
			}
		}(w)
	}

	// Readers walk the column index and prune while writers are busy.
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func(readerID int) {
			defer readers.Done()
			col := dascustody.ColumnIndex(readerID)
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := reg.NodesForColumn(ctx, col); err != nil {
					t.Errorf("reader %d: %v", readerID, err)
					return
				}
				if readerID == 0 {
					if _, err := reg.Prune(ctx); err != nil {
						t.Errorf("prune: %v", err)
						return
					}
				}
				col = (col + 7) % 128
			}
		}(r)
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	require.Len(t, tracked, numWriters*peersPerWriter)

	entries := 0
	for c := uint64(0); c < 128; c++ {
		nodes, err := reg.NodesForColumn(ctx, dascustody.ColumnIndex(c))
		require.NoError(t, err)
		entries += len(nodes)
	}
	assert.Equal(t, numWriters*peersPerWriter*4, entries)

	for _, a := range tracked {
		got, err := reg.LookupPeer(ctx, a.PeerID.String())
		require.NoError(t, err)
		assert.Equal(t, a.Subnets, got.Subnets)
	}
}

// Racing re-tracks of one node must leave exactly the index entries of the
// last write.
func TestRegistry_ConcurrentRetrack(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t, dascustody.Config{})
	id := testkit.RandomNodeID(testkit.RNG(9))

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(count uint64) {
			defer wg.Done()
			_, err := reg.TrackNode(ctx, id, dascustody.TrackMeta{Count: count})
			assert.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()

	a, err := reg.Lookup(ctx, id)
	require.NoError(t, err)

	want := make(map[dascustody.ColumnIndex]bool, len(a.Columns))
	for _, c := range a.Columns {
		want[c] = true
	}
	for c := uint64(0); c < 128; c++ {
		nodes, err := reg.NodesForColumn(ctx, dascustody.ColumnIndex(c))
		require.NoError(t, err)
		if want[dascustody.ColumnIndex(c)] {
			assert.Equal(t, []dascustody.NodeID{id}, nodes, "column %d", c)
		} else {
			assert.Empty(t, nodes, "column %d", c)
		}
	}
}

func TestRegistry_CloseDuringUse(t *testing.T) {
	cfg := dascustody.Config{Dir: t.TempDir(), Profile: dascustody.DefaultProfile()}
	reg, err := dascustody.OpenRegistry(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	rng := testkit.RNG(11)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		id := testkit.RandomNodeID(rng)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := reg.TrackNode(ctx, id, dascustody.TrackMeta{})
				if err != nil {
					assert.ErrorIs(t, err, dascustody.ErrClosed)
					return
				}
			}
		}()
	}

	require.NoError(t, reg.Close())
	wg.Wait()
	assert.ErrorIs(t, reg.Close(), dascustody.ErrClosed)
}
