// Package nodeid implements the 256-bit node identifier a peer's custody is
// derived from.
//
// An ID is both an opaque 32-byte string and an unsigned 256-bit integer. The
// integer reading is big-endian: the hex form "5e17..." names the same value
// whether it was typed by a user or produced by hashing a public key.
package nodeid

import (
	"bytes"
	"encoding/hex"
	"hash"
	"math/big"
	"strings"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
)

// Size is the length of an ID in bytes.
const Size = 32

// ID is a node identifier. The zero value is the all-zero identifier.
type ID [Size]byte

var (
	// Zero is the smallest identifier.
	Zero ID
	// Max is the largest identifier, 2^256 - 1.
	Max = func() ID {
		var id ID
		for i := range id {
			id[i] = 0xff
		}
		return id
	}()
)

// FromRaw wraps exactly 32 raw bytes.
func FromRaw(raw [Size]byte) ID {
	return ID(raw)
}

// Parse builds an ID from a slice that must be exactly 32 bytes long.
func Parse(b []byte) (ID, error) {
	if len(b) != Size {
		return ID{}, errors.Wrapf(core.ErrInvalidLength, "node id must be %d bytes, got %d", Size, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// ParseLenient accepts up to 32 bytes and right-aligns shorter input, so the
// missing bytes become leading zeros of the integer value.
func ParseLenient(b []byte) (ID, error) {
	if len(b) > Size {
		return ID{}, errors.Wrapf(core.ErrInvalidLength, "node id must be at most %d bytes, got %d", Size, len(b))
	}
	var id ID
	copy(id[Size-len(b):], b)
	return id, nil
}

// FromDigest finalizes h and uses its output as the ID.
func FromDigest(h hash.Hash) (ID, error) {
	if h.Size() != Size {
		return ID{}, errors.Wrapf(core.ErrInvalidLength, "digest must be %d bytes, got %d", Size, h.Size())
	}
	return Parse(h.Sum(nil))
}

// ParseHex parses up to 64 hexadecimal digits of the integer value, most
// significant digit first. A "0x" prefix is not accepted.
func ParseHex(s string) (ID, error) {
	if len(s) == 0 || len(s) > 2*Size {
		return ID{}, errors.Wrapf(core.ErrParse, "unable to parse node id %q: expected 1 to %d hex digits", s, 2*Size)
	}
	padded := strings.Repeat("0", 2*Size-len(s)) + s
	b, err := hex.DecodeString(padded)
	if err != nil {
		return ID{}, errors.Wrapf(core.ErrParse, "unable to parse node id %q: %v", s, err)
	}
	return Parse(b)
}

// ParseString parses the full form produced by Hex.
func ParseString(s string) (ID, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*Size {
		return ID{}, errors.Wrapf(core.ErrParse, "unable to parse node id %q: expected 0x followed by %d hex digits", s, 2*Size)
	}
	return ParseHex(s[2:])
}

// FromBig converts an integer in [0, 2^256).
func FromBig(v *big.Int) (ID, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 8*Size {
		return ID{}, errors.Wrap(core.ErrInvalidLength, "integer does not fit in 256 unsigned bits")
	}
	var id ID
	v.FillBytes(id[:])
	return id, nil
}

// Big returns the integer value.
func (id ID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Raw returns a copy of the underlying bytes.
func (id ID) Raw() [Size]byte {
	return id
}

// Bytes returns a copy of the underlying bytes as a slice.
func (id ID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, id[:])
	return b
}

// LittleEndian serializes the integer value least significant byte first.
func (id ID) LittleEndian() [Size]byte {
	var out [Size]byte
	for i := 0; i < Size; i++ {
		out[i] = id[Size-1-i]
	}
	return out
}

// Next returns id + 1 modulo 2^256, so Max.Next() is Zero.
func (id ID) Next() ID {
	for i := Size - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}

// Compare orders IDs by integer value.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// String returns the truncated form used in logs, e.g. "0x5e17..2b88".
func (id ID) String() string {
	enc := hex.EncodeToString(id[:])
	return "0x" + enc[:4] + ".." + enc[len(enc)-4:]
}

// Hex returns the full "0x"-prefixed form.
func (id ID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// GoString makes %#v print the full form.
func (id ID) GoString() string {
	return id.Hex()
}
