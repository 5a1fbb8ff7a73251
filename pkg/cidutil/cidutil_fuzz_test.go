package cidutil

import (
	"encoding/hex"
	"testing"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
)

// FuzzRecordCID checks that the CID of an assignment record verifies against
// that record and against no single-bit variation of it.
func FuzzRecordCID(f *testing.F) {
	builder := NewBuilder()

	golden, _ := hex.DecodeString("5e17a23d36023ab1106e4ef1cd8657f4214f60776a2602a5ea081fcee2c72b88")
	f.Add(golden, uint8(4), uint16(0))
	f.Add(golden, uint8(128), uint16(300))
	f.Add([]byte{0xff}, uint8(0), uint16(7))
	f.Add([]byte{}, uint8(2), uint16(1))

	f.Fuzz(func(t *testing.T, node []byte, count uint8, flip uint16) {
		id, err := nodeid.ParseLenient(node)
		if err != nil {
			return
		}
		raw := encodeAssignment(t, id, uint64(count)%(core.DefaultProfile().TotalSubnets+1))

		c, err := builder.RecordCID(raw)
		if err != nil {
			t.Fatalf("RecordCID failed: %v", err)
		}
		if err := builder.Verify(c, raw); err != nil {
			t.Fatalf("record does not verify against its own CID: %v", err)
		}

		tampered := append([]byte(nil), raw...)
		tampered[int(flip)%len(tampered)] ^= 0x01
		if err := builder.Verify(c, tampered); !errors.Is(err, core.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt for a tampered record, got %v", err)
		}

		// a damaged CID must be refused without panicking
		badCID := append([]byte(nil), c.Bytes...)
		badCID[int(flip)%len(badCID)] ^= 0x01
		_ = builder.Verify(core.CID{Bytes: badCID}, raw)
	})
}
