package record

import (
	"testing"

	"github.com/agenthands/dascustody/pkg/core"
)

func FuzzRecordDecode(f *testing.F) {
	codec := mustCodec(f, core.CompactProfile())

	encoded, _ := codec.Encode(goldenAssignment(f))
	f.Add(encoded)
	f.Add([]byte("garbage input"))
	f.Add([]byte{})
	f.Add([]byte{0xa1, 0x67, 0x76, 0x65, 0x72, 0x73, 0x69, 0x6f, 0x6e, 0x01}) // {"version": 1}

	f.Fuzz(func(t *testing.T, data []byte) {
		a, err := codec.Decode(data)
		if err != nil {
			return
		}
		// anything accepted must survive a second trip
		if _, err := codec.Encode(a); err != nil {
			t.Fatalf("decoded record failed to re-encode: %v", err)
		}
	})
}
