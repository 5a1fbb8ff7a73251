package catalog

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/agenthands/dascustody/internal/testkit"
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/pebble"
)

func openTemp(t testing.TB) Catalog {
	t.Helper()
	dir, err := os.MkdirTemp("", "dascustody-catalog-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cat, err := Open(dir)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestCatalog(t *testing.T) {
	cat := openTemp(t)
	ctx := context.Background()
	r := testkit.RNG(3)

	t.Run("Record", func(t *testing.T) {
		id := testkit.RandomNodeID(r)
		cid := core.CID{Bytes: []byte("record-cid")}
		stored := []byte("stored record")

		if err := cat.PutRecord(nil, id, cid, stored); err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}

		gotStored, gotCID, ok, err := cat.GetRecord(ctx, id)
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if !ok || !bytes.Equal(gotStored, stored) || !bytes.Equal(gotCID.Bytes, cid.Bytes) {
			t.Errorf("unexpected record: %q %x (ok=%v)", gotStored, gotCID.Bytes, ok)
		}
	})

	t.Run("PeerMapping", func(t *testing.T) {
		id := testkit.RandomNodeID(r)
		peer := []byte{0x00, 0x25, 0x08, 0x02}

		if err := cat.PutNodeForPeer(nil, peer, id); err != nil {
			t.Fatalf("PutNodeForPeer failed: %v", err)
		}

		got, ok, err := cat.GetNodeForPeer(ctx, peer)
		if err != nil {
			t.Fatalf("GetNodeForPeer failed: %v", err)
		}
		if !ok || got != id {
			t.Errorf("expected %s, got %s (ok=%v)", id, got, ok)
		}
	})

	t.Run("ColumnIndexOrder", func(t *testing.T) {
		ids := []nodeid.ID{nodeid.Max, testkit.RandomNodeID(r), nodeid.Zero}
		for _, id := range ids {
			if err := cat.PutColumnNode(nil, 7, id); err != nil {
				t.Fatalf("PutColumnNode failed: %v", err)
			}
		}
		// a neighbouring column must not leak into the scan
		_ = cat.PutColumnNode(nil, 8, testkit.RandomNodeID(r))

		var got []nodeid.ID
		err := cat.IterateColumn(ctx, 7, func(id nodeid.ID) error {
			got = append(got, id)
			return nil
		})
		if err != nil {
			t.Fatalf("IterateColumn failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 nodes, got %d", len(got))
		}
		if got[0] != nodeid.Zero || got[2] != nodeid.Max {
			t.Errorf("expected ascending node ids, got %v", got)
		}

		_ = cat.DeleteColumnNode(nil, 7, nodeid.Zero)
		got = got[:0]
		_ = cat.IterateColumn(ctx, 7, func(id nodeid.ID) error {
			got = append(got, id)
			return nil
		})
		if len(got) != 2 {
			t.Errorf("expected 2 nodes after delete, got %d", len(got))
		}
	})

	t.Run("Deadlines", func(t *testing.T) {
		id := testkit.RandomNodeID(r)
		deadline := time.Now().Add(24 * time.Hour).Truncate(time.Second)

		if err := cat.PutDeadline(nil, id, deadline); err != nil {
			t.Fatalf("PutDeadline failed: %v", err)
		}

		got, ok, err := cat.GetDeadline(ctx, id)
		if err != nil || !ok || !got.Equal(deadline) {
			t.Errorf("GetDeadline: expected %v, got %v (ok=%v, err=%v)", deadline, got, ok, err)
		}

		found := false
		err = cat.IterateDeadlines(ctx, func(gotID nodeid.ID, gotDeadline time.Time) error {
			if gotID == id {
				found = gotDeadline.Equal(deadline)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("IterateDeadlines failed: %v", err)
		}
		if !found {
			t.Error("deadline not found during iteration")
		}
	})

	t.Run("BatchAtomicity", func(t *testing.T) {
		id := testkit.RandomNodeID(r)
		cid := core.CID{Bytes: []byte("batch-cid")}

		batch := cat.NewBatch()
		_ = cat.PutRecord(batch, id, cid, []byte("v"))
		_ = cat.PutColumnNode(batch, 1, id)

		if _, _, ok, _ := cat.GetRecord(ctx, id); ok {
			t.Error("expected record not to be visible before commit")
		}

		batch.Close() // discarding without commit

		if _, _, ok, _ := cat.GetRecord(ctx, id); ok {
			t.Error("expected record not to be visible after discarded batch")
		}

		batch2 := cat.NewBatch()
		_ = cat.PutRecord(batch2, id, cid, []byte("v"))
		_ = cat.PutDeadline(batch2, id, time.Now())
		_ = batch2.Commit(pebble.Sync)
		batch2.Close()

		_, _, ok1, _ := cat.GetRecord(ctx, id)
		_, ok2, _ := cat.GetDeadline(ctx, id)
		if !ok1 || !ok2 {
			t.Error("expected both items to be committed atomically")
		}
	})
}

func TestDeleteNode(t *testing.T) {
	cat := openTemp(t)
	ctx := context.Background()
	r := testkit.RNG(4)

	id := testkit.RandomNodeID(r)
	other := testkit.RandomNodeID(r)
	peer := []byte("peer-a")
	columns := []core.ColumnIndex{3, 35, 67}

	seed := func() {
		_ = cat.PutRecord(nil, id, core.CID{Bytes: []byte("cid")}, []byte("rec"))
		_ = cat.PutDeadline(nil, id, time.Now())
		_ = cat.PutNodeForPeer(nil, peer, id)
		for _, col := range columns {
			_ = cat.PutColumnNode(nil, col, id)
			_ = cat.PutColumnNode(nil, col, other)
		}
	}

	assertGone := func(t *testing.T) {
		t.Helper()
		if _, _, ok, _ := cat.GetRecord(ctx, id); ok {
			t.Error("record survived")
		}
		if _, ok, _ := cat.GetDeadline(ctx, id); ok {
			t.Error("deadline survived")
		}
		if _, ok, _ := cat.GetNodeForPeer(ctx, peer); ok {
			t.Error("peer mapping survived")
		}
		for _, col := range columns {
			var got []nodeid.ID
			_ = cat.IterateColumn(ctx, col, func(n nodeid.ID) error {
				got = append(got, n)
				return nil
			})
			if len(got) != 1 || got[0] != other {
				t.Errorf("column %d: expected only the other node, got %v", col, got)
			}
		}
	}

	t.Run("Known", func(t *testing.T) {
		seed()
		batch := cat.NewBatch()
		defer batch.Close()
		if err := cat.DeleteNode(batch, id, peer, columns); err != nil {
			t.Fatalf("DeleteNode failed: %v", err)
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			t.Fatal(err)
		}
		assertGone(t)
	})

	t.Run("Purge", func(t *testing.T) {
		seed()
		batch := cat.NewBatch()
		defer batch.Close()
		if err := cat.PurgeNode(ctx, batch, id); err != nil {
			t.Fatalf("PurgeNode failed: %v", err)
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			t.Fatal(err)
		}
		assertGone(t)
	})
}

func TestIterateNodes(t *testing.T) {
	cat := openTemp(t)
	ctx := context.Background()

	ids := []nodeid.ID{nodeid.Max, testkit.RandomNodeID(testkit.RNG(6)), nodeid.Zero}
	for _, id := range ids {
		if err := cat.PutRecord(nil, id, core.CID{Bytes: []byte("cid")}, []byte("rec")); err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}
	}
	// index-only entries are not nodes
	_ = cat.PutColumnNode(nil, 1, testkit.RandomNodeID(testkit.RNG(7)))
	_ = cat.PutDeadline(nil, testkit.RandomNodeID(testkit.RNG(8)), time.Now())

	var got []nodeid.ID
	err := cat.IterateNodes(ctx, func(id nodeid.ID) error {
		got = append(got, id)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateNodes failed: %v", err)
	}
	if len(got) != 3 || got[0] != nodeid.Zero || got[2] != nodeid.Max {
		t.Errorf("expected 3 ascending node ids, got %v", got)
	}
}
