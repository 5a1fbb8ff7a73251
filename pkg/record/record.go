package record

import (
	"slices"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/custody"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"
)

// Version is the only record version this package writes.
const Version = 1

// AssignmentV1 is the stored form of a computed custody assignment.
type AssignmentV1 struct {
	Version      uint16   `cbor:"version"`
	Profile      string   `cbor:"profile,omitempty"`
	TotalSubnets uint64   `cbor:"total_subnets"`
	TotalColumns uint64   `cbor:"total_columns"`
	NodeID       []byte   `cbor:"node_id"`
	PeerID       []byte   `cbor:"peer_id,omitempty"`
	Count        uint64   `cbor:"count"`
	Subnets      []uint64 `cbor:"subnets"`
	Columns      []uint64 `cbor:"columns"`
}

// Codec defines the interface for record encoding/decoding and validation.
type Codec interface {
	Encode(a *AssignmentV1) ([]byte, error)
	Decode(b []byte) (*AssignmentV1, error)
}

type codec struct {
	sel     custody.Selector
	encMode cbor.EncMode
}

// NewCodec returns a Codec that accepts records of the selector's layout.
func NewCodec(sel custody.Selector) Codec {
	// Core Deterministic Encoding: equal assignments encode to equal bytes,
	// so their CIDs match.
	em, _ := cbor.CoreDetEncOptions().EncMode()
	return &codec{
		sel:     sel,
		encMode: em,
	}
}

func (c *codec) Encode(a *AssignmentV1) ([]byte, error) {
	if err := c.validate(a); err != nil {
		return nil, errors.Wrapf(core.ErrInvalidInput, "%v", err)
	}
	return c.encMode.Marshal(a)
}

func (c *codec) Decode(b []byte) (*AssignmentV1, error) {
	var a AssignmentV1
	if err := cbor.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrapf(core.ErrCorrupt, "failed to unmarshal record: %v", err)
	}
	if err := c.validate(&a); err != nil {
		return nil, errors.Wrapf(core.ErrCorrupt, "%v", err)
	}
	return &a, nil
}

func (c *codec) validate(a *AssignmentV1) error {
	if a.Version != Version {
		return errors.Newf("unsupported record version %d", a.Version)
	}

	cfg := c.sel.Config()
	if a.TotalSubnets != cfg.TotalSubnets || a.TotalColumns != cfg.TotalColumns {
		return errors.Newf("record layout %d/%d does not match %d/%d",
			a.TotalSubnets, a.TotalColumns, cfg.TotalSubnets, cfg.TotalColumns)
	}

	id, err := nodeid.Parse(a.NodeID)
	if err != nil {
		return errors.Newf("node id has %d bytes", len(a.NodeID))
	}

	if uint64(len(a.Subnets)) != a.Count {
		return errors.Newf("count is %d but %d subnets are listed", a.Count, len(a.Subnets))
	}

	subnets := make([]core.SubnetIndex, len(a.Subnets))
	for i, s := range a.Subnets {
		if s >= cfg.TotalSubnets {
			return errors.Newf("subnet %d out of range", s)
		}
		if i > 0 && a.Subnets[i-1] >= s {
			return errors.Newf("subnets are not strictly increasing at %d", i)
		}
		subnets[i] = core.SubnetIndex(s)
	}

	// A content address only proves integrity, so the selection itself is
	// recomputed from the node id.
	selected, err := c.sel.Subnets(id, a.Count)
	if err != nil {
		return err
	}
	if !slices.Equal(subnets, selected) {
		return errors.New("subnets do not match the selection for the node")
	}

	want, err := c.sel.ColumnsFor(subnets)
	if err != nil {
		return err
	}
	got := make([]core.ColumnIndex, len(a.Columns))
	for i, col := range a.Columns {
		got[i] = core.ColumnIndex(col)
	}
	if !slices.Equal(got, want) {
		return errors.New("columns do not match the listed subnets")
	}

	return nil
}
