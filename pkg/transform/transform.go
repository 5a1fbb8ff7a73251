// Package transform wraps stored registry values in an optional
// compression envelope.
package transform

import (
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

const (
	Magic   = "DCRV"
	Version = 1
)

const (
	FlagCompressed = 1 << 0
)

const (
	AlgZstd = 1
)

const headerLen = len(Magic) + 3

const (
	NameNone = "none"
	NameZstd = "zstd"
)

// Transform defines the interface for encoding/decoding stored values.
type Transform interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// New builds the transform named by cfg. An empty name means none.
func New(cfg core.TransformConfig) (Transform, error) {
	switch cfg.Name {
	case NameNone, "":
		return NewNone(), nil
	case NameZstd:
		return NewZstd(cfg.ZstdLevel)
	default:
		return nil, errors.Wrapf(core.ErrInvalidConfig, "unknown transform %q", cfg.Name)
	}
}

type noneTransform struct{}

func NewNone() Transform {
	return &noneTransform{}
}

func (t *noneTransform) Name() string                         { return NameNone }
func (t *noneTransform) Encode(plain []byte) ([]byte, error)  { return plain, nil }
func (t *noneTransform) Decode(stored []byte) ([]byte, error) { return stored, nil }

type zstdTransform struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd returns a zstd transform. Level 0 selects the library default.
func NewZstd(level int) (Transform, error) {
	opts := []zstd.EOption{}
	if level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "zstd writer: %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "zstd reader: %v", err)
	}
	return &zstdTransform{
		encoder: enc,
		decoder: dec,
	}, nil
}

func (t *zstdTransform) Name() string { return NameZstd }

func (t *zstdTransform) Encode(plain []byte) ([]byte, error) {
	compressed := t.encoder.EncodeAll(plain, nil)

	envelope := make([]byte, 0, headerLen+len(compressed))
	envelope = append(envelope, Magic...)
	envelope = append(envelope, Version, FlagCompressed, AlgZstd)
	envelope = append(envelope, compressed...)

	return envelope, nil
}

func (t *zstdTransform) Decode(stored []byte) ([]byte, error) {
	if len(stored) < headerLen {
		return nil, errors.Wrap(core.ErrCorrupt, "value too small for envelope")
	}

	if string(stored[:len(Magic)]) != Magic {
		return nil, errors.Wrap(core.ErrCorrupt, "invalid magic")
	}

	if v := stored[len(Magic)]; v != Version {
		return nil, errors.Wrapf(core.ErrCorrupt, "unsupported envelope version %d", v)
	}

	flags := stored[len(Magic)+1]
	alg := stored[len(Magic)+2]
	payload := stored[headerLen:]

	if flags&FlagCompressed == 0 {
		return payload, nil
	}
	if alg != AlgZstd {
		return nil, errors.Wrapf(core.ErrCorrupt, "unsupported compression algorithm %d", alg)
	}
	plain, err := t.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, errors.Wrapf(core.ErrCorrupt, "zstd: %v", err)
	}
	return plain, nil
}
