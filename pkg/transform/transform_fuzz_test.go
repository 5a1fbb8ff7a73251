package transform

import (
	"testing"
)

func FuzzTransformDecode(f *testing.F) {
	tr, err := NewZstd(3)
	if err != nil {
		f.Fatal(err)
	}

	f.Add([]byte{})
	f.Add([]byte("garbage input"))

	valid, _ := tr.Encode([]byte("highly compressible compressible data"))
	f.Add(valid)
	if len(valid) > 5 {
		f.Add(valid[:len(valid)-5])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = tr.Decode(data)
	})
}
