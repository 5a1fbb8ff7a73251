// Package pubkey encodes and decodes the protobuf public-key record embedded
// in peer identities:
//
//	message PublicKey {
//		required KeyType Type = 1;
//		required bytes Data = 2;
//	}
package pubkey

import (
	"crypto/ed25519"
	"fmt"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

// KeyType tags the key family of a record.
type KeyType int32

const (
	RSA       KeyType = 0
	Ed25519   KeyType = 1
	Secp256k1 KeyType = 2
	ECDSA     KeyType = 3
)

func (t KeyType) String() string {
	switch t {
	case RSA:
		return "RSA"
	case Ed25519:
		return "Ed25519"
	case Secp256k1:
		return "Secp256k1"
	case ECDSA:
		return "ECDSA"
	default:
		return fmt.Sprintf("KeyType(%d)", int32(t))
	}
}

const (
	fieldType protowire.Number = 1
	fieldData protowire.Number = 2
)

// PublicKey is a decoded record. Data holds the family's canonical encoding:
// 32 raw bytes for Ed25519, the compressed point for Secp256k1.
type PublicKey struct {
	Type KeyType
	Data []byte
}

// FromEd25519 wraps an Ed25519 public key.
func FromEd25519(pub ed25519.PublicKey) (PublicKey, error) {
	if len(pub) != ed25519.PublicKeySize {
		return PublicKey{}, errors.Wrapf(core.ErrInvalidLength, "ed25519 public key must be %d bytes, got %d",
			ed25519.PublicKeySize, len(pub))
	}
	return PublicKey{Type: Ed25519, Data: append([]byte(nil), pub...)}, nil
}

// FromSecp256k1 wraps a secp256k1 public key in its compressed form.
func FromSecp256k1(pub *secp256k1.PublicKey) PublicKey {
	return PublicKey{Type: Secp256k1, Data: pub.SerializeCompressed()}
}

// Marshal encodes the record with fields in ascending order.
func Marshal(pk PublicKey) []byte {
	b := make([]byte, 0, 4+len(pk.Data))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pk.Type))
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, pk.Data)
	return b
}

// Unmarshal decodes a record. Both fields are required; unknown fields are
// skipped.
func Unmarshal(b []byte) (PublicKey, error) {
	var (
		pk                 PublicKey
		haveType, haveData bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return PublicKey{}, errors.Wrapf(core.ErrDecode, "public key record: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return PublicKey{}, errors.Wrapf(core.ErrDecode, "public key type: %v", protowire.ParseError(n))
			}
			pk.Type = KeyType(int32(v))
			haveType = true
			b = b[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return PublicKey{}, errors.Wrapf(core.ErrDecode, "public key data: %v", protowire.ParseError(n))
			}
			pk.Data = append([]byte(nil), v...)
			haveData = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return PublicKey{}, errors.Wrapf(core.ErrDecode, "public key field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveType {
		return PublicKey{}, errors.Wrap(core.ErrDecode, "public key record is missing its type")
	}
	if !haveData {
		return PublicKey{}, errors.Wrap(core.ErrDecode, "public key record is missing its data")
	}
	return pk, nil
}
