package testkit

import (
	"context"
	"time"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
)

// Index is the read side of catalog.Catalog the helpers below need.
type Index interface {
	IterateColumn(ctx context.Context, column core.ColumnIndex, fn func(id nodeid.ID) error) error
	IterateDeadlines(ctx context.Context, fn func(id nodeid.ID, deadline time.Time) error) error
}

// ColumnIndexSize returns the number of column index entries across
// columns [0, totalColumns).
func ColumnIndexSize(ctx context.Context, cat Index, totalColumns uint64) (int, error) {
	n := 0
	for col := uint64(0); col < totalColumns; col++ {
		err := cat.IterateColumn(ctx, core.ColumnIndex(col), func(nodeid.ID) error {
			n++
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

// CountDeadlines returns the number of nodes with an expiry.
func CountDeadlines(ctx context.Context, cat Index) (int, error) {
	n := 0
	err := cat.IterateDeadlines(ctx, func(nodeid.ID, time.Time) error {
		n++
		return nil
	})
	return n, err
}

// CorruptBytes returns a copy of payload with the last byte flipped.
func CorruptBytes(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	if len(out) > 0 {
		out[len(out)-1] ^= 0xFF
	}
	return out
}
