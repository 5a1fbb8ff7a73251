// Package custody selects the custody subnets of a node and expands them
// into data columns.
//
// Selection walks a deterministic sequence of candidate ids starting at the
// node id and advancing by one, hashing each candidate with SHA-256 until
// enough distinct subnets have been found. Two implementations given the same
// node id always agree on the result.
package custody

import (
	"encoding/binary"
	"slices"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
	"github.com/minio/sha256-simd"
)

// Selector computes custody assignments for one deployment layout.
type Selector interface {
	Config() core.DeploymentConfig
	// Subnets returns count distinct subnets in ascending order.
	Subnets(id nodeid.ID, count uint64) ([]core.SubnetIndex, error)
	// Columns returns the columns carried by one subnet in ascending order.
	Columns(subnet core.SubnetIndex) ([]core.ColumnIndex, error)
	// ColumnsFor merges the columns of every distinct subnet given.
	ColumnsFor(subnets []core.SubnetIndex) ([]core.ColumnIndex, error)
}

type selector struct {
	cfg core.DeploymentConfig
}

// NewSelector validates cfg and returns a Selector for it.
func NewSelector(cfg core.DeploymentConfig) (Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &selector{cfg: cfg}, nil
}

func (s *selector) Config() core.DeploymentConfig {
	return s.cfg
}

func (s *selector) Subnets(id nodeid.ID, count uint64) ([]core.SubnetIndex, error) {
	if count > s.cfg.TotalSubnets {
		return nil, errors.Wrapf(core.ErrInvalidSubnetCount, "requested %d custody subnets, only %d exist",
			count, s.cfg.TotalSubnets)
	}

	seen := make(map[core.SubnetIndex]struct{}, count)
	out := make([]core.SubnetIndex, 0, count)
	for cursor := id; uint64(len(out)) < count; cursor = cursor.Next() {
		subnet := candidateSubnet(cursor, s.cfg.TotalSubnets)
		if _, ok := seen[subnet]; ok {
			continue
		}
		seen[subnet] = struct{}{}
		out = append(out, subnet)
	}

	slices.Sort(out)
	return out, nil
}

// candidateSubnet hashes the little-endian cursor and reduces the first
// eight bytes of the digest, read little-endian, modulo totalSubnets.
func candidateSubnet(cursor nodeid.ID, totalSubnets uint64) core.SubnetIndex {
	le := cursor.LittleEndian()
	digest := sha256.Sum256(le[:])
	return core.SubnetIndex(binary.LittleEndian.Uint64(digest[:8]) % totalSubnets)
}

func (s *selector) Columns(subnet core.SubnetIndex) ([]core.ColumnIndex, error) {
	if uint64(subnet) >= s.cfg.TotalSubnets {
		return nil, errors.Wrapf(core.ErrInvalidSubnet, "subnet %d is outside [0, %d)", subnet, s.cfg.TotalSubnets)
	}
	return s.expand(subnet, make([]core.ColumnIndex, 0, s.cfg.ColumnsPerSubnet())), nil
}

func (s *selector) ColumnsFor(subnets []core.SubnetIndex) ([]core.ColumnIndex, error) {
	distinct := slices.Clone(subnets)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	out := make([]core.ColumnIndex, 0, uint64(len(distinct))*s.cfg.ColumnsPerSubnet())
	for _, subnet := range distinct {
		if uint64(subnet) >= s.cfg.TotalSubnets {
			return nil, errors.Wrapf(core.ErrInvalidSubnet, "subnet %d is outside [0, %d)", subnet, s.cfg.TotalSubnets)
		}
		out = s.expand(subnet, out)
	}

	slices.Sort(out)
	return out, nil
}

func (s *selector) expand(subnet core.SubnetIndex, dst []core.ColumnIndex) []core.ColumnIndex {
	for i := uint64(0); i < s.cfg.ColumnsPerSubnet(); i++ {
		dst = append(dst, core.ColumnIndex(s.cfg.TotalSubnets*i+uint64(subnet)))
	}
	return dst
}
