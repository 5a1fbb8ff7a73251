package nodeid

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"
	"testing"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
)

const goldenHex = "5e17a23d36023ab1106e4ef1cd8657f4214f60776a2602a5ea081fcee2c72b88"

func TestParse(t *testing.T) {
	t.Run("ExactLength", func(t *testing.T) {
		b := make([]byte, Size)
		for i := range b {
			b[i] = byte(i)
		}
		id, err := Parse(b)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if !bytes.Equal(id.Bytes(), b) {
			t.Errorf("expected %x, got %x", b, id.Bytes())
		}

		// the returned slice is a copy
		out := id.Bytes()
		out[0] = 0xff
		if id[0] != 0 {
			t.Error("mutating Bytes() leaked into the ID")
		}
	})

	t.Run("WrongLength", func(t *testing.T) {
		for _, n := range []int{0, 1, 31, 33, 64} {
			_, err := Parse(make([]byte, n))
			if !errors.Is(err, core.ErrInvalidLength) {
				t.Errorf("len %d: expected ErrInvalidLength, got %v", n, err)
			}
		}
	})

	t.Run("Lenient", func(t *testing.T) {
		id, err := ParseLenient([]byte{0x01, 0x02})
		if err != nil {
			t.Fatalf("ParseLenient failed: %v", err)
		}
		if id[Size-2] != 0x01 || id[Size-1] != 0x02 {
			t.Errorf("expected input right-aligned, got %x", id[:])
		}
		if id.Big().Int64() != 0x0102 {
			t.Errorf("expected integer 0x0102, got %s", id.Big().Text(16))
		}

		if _, err := ParseLenient(make([]byte, Size+1)); !errors.Is(err, core.ErrInvalidLength) {
			t.Errorf("expected ErrInvalidLength, got %v", err)
		}
	})
}

func TestFromDigest(t *testing.T) {
	h := sha256.New()
	h.Write([]byte("node"))
	id, err := FromDigest(h)
	if err != nil {
		t.Fatalf("FromDigest failed: %v", err)
	}
	want := sha256.Sum256([]byte("node"))
	if id != FromRaw(want) {
		t.Errorf("expected %x, got %x", want, id[:])
	}

	if _, err := FromDigest(sha512.New()); !errors.Is(err, core.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for a 64-byte digest, got %v", err)
	}
}

func TestParseHex(t *testing.T) {
	t.Run("Golden", func(t *testing.T) {
		id, err := ParseHex(goldenHex)
		if err != nil {
			t.Fatalf("ParseHex failed: %v", err)
		}
		if id[0] != 0x5e || id[Size-1] != 0x88 {
			t.Errorf("expected big-endian digits, got %x", id[:])
		}
		if got := id.Big().Text(16); got != goldenHex {
			t.Errorf("expected integer %s, got %s", goldenHex, got)
		}
	})

	t.Run("ShortInput", func(t *testing.T) {
		id, err := ParseHex("1")
		if err != nil {
			t.Fatalf("ParseHex failed: %v", err)
		}
		if id.Big().Int64() != 1 {
			t.Errorf("expected 1, got %s", id.Big())
		}

		id, err = ParseHex("abc")
		if err != nil {
			t.Fatalf("ParseHex with odd digit count failed: %v", err)
		}
		if id.Big().Int64() != 0xabc {
			t.Errorf("expected 0xabc, got %s", id.Big().Text(16))
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, s := range []string{"", "0x" + goldenHex, "zz", goldenHex + "00", "-1", " 1"} {
			if _, err := ParseHex(s); !errors.Is(err, core.ErrParse) {
				t.Errorf("%q: expected ErrParse, got %v", s, err)
			}
		}
	})
}

func TestFormatting(t *testing.T) {
	id, err := ParseHex(goldenHex)
	if err != nil {
		t.Fatal(err)
	}

	if got := id.String(); got != "0x5e17..2b88" {
		t.Errorf("String: got %q", got)
	}
	if got := id.Hex(); got != "0x"+goldenHex {
		t.Errorf("Hex: got %q", got)
	}
	if got := fmt.Sprintf("%#v", id); got != "0x"+goldenHex {
		t.Errorf("GoString: got %q", got)
	}

	back, err := ParseString(id.Hex())
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if back != id {
		t.Errorf("round trip mismatch: %s != %s", back.Hex(), id.Hex())
	}

	if _, err := ParseString(goldenHex); !errors.Is(err, core.ErrParse) {
		t.Errorf("expected ErrParse without prefix, got %v", err)
	}
	if _, err := ParseString("0x1234"); !errors.Is(err, core.ErrParse) {
		t.Errorf("expected ErrParse for the truncated length, got %v", err)
	}
}

func TestBigConversion(t *testing.T) {
	id, _ := ParseHex(goldenHex)
	back, err := FromBig(id.Big())
	if err != nil {
		t.Fatalf("FromBig failed: %v", err)
	}
	if back != id {
		t.Errorf("expected %s, got %s", id.Hex(), back.Hex())
	}

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := FromBig(tooBig); !errors.Is(err, core.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for 2^256, got %v", err)
	}
	if _, err := FromBig(big.NewInt(-1)); !errors.Is(err, core.ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength for a negative value, got %v", err)
	}

	maxBig := new(big.Int).Sub(tooBig, big.NewInt(1))
	if Max.Big().Cmp(maxBig) != 0 {
		t.Errorf("Max is not 2^256-1: %s", Max.Big().Text(16))
	}
}

func TestNext(t *testing.T) {
	t.Run("Increment", func(t *testing.T) {
		id, _ := ParseHex("ff")
		next := id.Next()
		if next.Big().Int64() != 0x100 {
			t.Errorf("expected 0x100, got %s", next.Big().Text(16))
		}
		if id.Big().Int64() != 0xff {
			t.Error("Next mutated the receiver")
		}
	})

	t.Run("Wraparound", func(t *testing.T) {
		if got := Max.Next(); got != Zero {
			t.Errorf("expected Max.Next() to wrap to zero, got %s", got.Hex())
		}
		if got := Zero.Next(); got.Big().Int64() != 1 {
			t.Errorf("expected 1, got %s", got.Hex())
		}
	})
}

func TestLittleEndian(t *testing.T) {
	id, _ := ParseHex("0102")
	le := id.LittleEndian()
	if le[0] != 0x02 || le[1] != 0x01 {
		t.Errorf("expected least significant byte first, got %x", le[:4])
	}
	for _, b := range le[2:] {
		if b != 0 {
			t.Fatalf("expected zero high bytes, got %x", le[:])
		}
	}
}

func TestCompare(t *testing.T) {
	a, _ := ParseHex("01")
	b, _ := ParseHex("0100")
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Errorf("unexpected ordering between %s and %s", a.Hex(), b.Hex())
	}
}
