package cidutil

import (
	"bytes"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Builder defines the interface for creating and verifying record CIDs.
type Builder interface {
	RecordCID(dagCbor []byte) (core.CID, error)
	Verify(c core.CID, data []byte) error
	String(c core.CID) (string, error)
}

type builder struct{}

// NewBuilder returns a new CID builder implementation.
func NewBuilder() Builder {
	return &builder{}
}

func (b *builder) RecordCID(dagCbor []byte) (core.CID, error) {
	hash, err := multihash.Sum(dagCbor, multihash.SHA2_256, -1)
	if err != nil {
		return core.CID{}, errors.Wrap(err, "failed to compute multihash")
	}

	c := cid.NewCidV1(cid.DagCBOR, hash)
	return core.CID{Bytes: c.Bytes()}, nil
}

func (b *builder) Verify(c core.CID, data []byte) error {
	id, err := cid.Cast(c.Bytes)
	if err != nil {
		return errors.Wrapf(core.ErrCorrupt, "invalid CID bytes: %v", err)
	}

	prefix := id.Prefix()
	hash, err := multihash.Sum(data, prefix.MhType, prefix.MhLength)
	if err != nil {
		return errors.Wrap(err, "failed to compute multihash for verification")
	}

	if !bytes.Equal(id.Hash(), hash) {
		return errors.Wrapf(core.ErrCorrupt, "CID mismatch for %s", id)
	}

	return nil
}

// String renders c in its default multibase form.
func (b *builder) String(c core.CID) (string, error) {
	id, err := cid.Cast(c.Bytes)
	if err != nil {
		return "", errors.Wrapf(core.ErrCorrupt, "invalid CID bytes: %v", err)
	}
	return id.String(), nil
}
