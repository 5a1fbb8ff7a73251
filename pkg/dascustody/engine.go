// Package dascustody computes which data-availability subnets and columns a
// node is responsible for, and optionally keeps the results in an on-disk
// registry.
//
// An Engine is bound to one deployment profile and is safe for concurrent
// use. Every query is a pure function of its inputs.
package dascustody

import (
	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/custody"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/agenthands/dascustody/pkg/peerid"
	"github.com/agenthands/dascustody/pkg/resolver"
	"github.com/cockroachdb/errors"
)

// Engine answers custody queries for one deployment profile.
type Engine struct {
	cfg      DeploymentConfig
	selector custody.Selector
	resolver resolver.Resolver
}

// New validates cfg and returns an Engine for it.
func New(cfg DeploymentConfig) (*Engine, error) {
	sel, err := custody.NewSelector(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		selector: sel,
		resolver: resolver.NewResolver(),
	}, nil
}

type query struct {
	count uint64
}

// QueryOption adjusts a single query.
type QueryOption func(*query)

// WithCount overrides the profile's default custody subnet count.
func WithCount(n uint64) QueryOption {
	return func(q *query) { q.count = n }
}

func (e *Engine) query(opts []QueryOption) query {
	q := query{count: e.cfg.DefaultCustodySubnetCount}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Config returns the deployment profile the engine was built for.
func (e *Engine) Config() DeploymentConfig {
	return e.cfg
}

// TotalSubnetCount is the number of custody subnets in the profile.
func (e *Engine) TotalSubnetCount() uint64 {
	return e.cfg.TotalSubnets
}

// CustodySubnets parses a node id given as bare hex digits and returns its
// custody subnets in ascending order.
func (e *Engine) CustodySubnets(hex string, opts ...QueryOption) ([]SubnetIndex, error) {
	id, err := nodeid.ParseHex(hex)
	if err != nil {
		return nil, err
	}
	return e.Subnets(id, opts...)
}

// Subnets is CustodySubnets for an already parsed node id.
func (e *Engine) Subnets(id NodeID, opts ...QueryOption) ([]SubnetIndex, error) {
	return e.selector.Subnets(id, e.query(opts).count)
}

// CustodySubnetsFromPeerID resolves a textual peer id to its node id first.
func (e *Engine) CustodySubnetsFromPeerID(peer string, opts ...QueryOption) ([]SubnetIndex, error) {
	id, err := e.NodeIDFromPeerID(peer)
	if err != nil {
		return nil, err
	}
	return e.Subnets(id, opts...)
}

// CustodyColumns expands subnets into the sorted set of columns they carry.
func (e *Engine) CustodyColumns(subnets []SubnetIndex) ([]ColumnIndex, error) {
	return e.selector.ColumnsFor(subnets)
}

// CustodyColumnsForNode selects the subnets of a hex node id and expands them.
func (e *Engine) CustodyColumnsForNode(hex string, opts ...QueryOption) ([]ColumnIndex, error) {
	subnets, err := e.CustodySubnets(hex, opts...)
	if err != nil {
		return nil, err
	}
	return e.selector.ColumnsFor(subnets)
}

// NodeIDFromPeerID decodes a textual peer id and derives the node id from
// its embedded public key.
func (e *Engine) NodeIDFromPeerID(peer string) (NodeID, error) {
	pid, err := peerid.Decode(peer)
	if err != nil {
		return NodeID{}, err
	}
	return e.resolver.NodeIDFromPeer(pid)
}

// Assignment computes the full assignment of id. Record and Deadline are
// left empty.
func (e *Engine) Assignment(id NodeID, opts ...QueryOption) (Assignment, error) {
	subnets, err := e.Subnets(id, opts...)
	if err != nil {
		return Assignment{}, err
	}
	columns, err := e.selector.ColumnsFor(subnets)
	if err != nil {
		return Assignment{}, errors.Wrapf(err, "expand subnets of %s", id)
	}
	return Assignment{
		NodeID:  id,
		Subnets: subnets,
		Columns: columns,
	}, nil
}

func (e *Engine) columnInRange(c ColumnIndex) error {
	if uint64(c) >= e.cfg.TotalColumns {
		return errors.Wrapf(core.ErrInvalidInput, "column %d is outside [0, %d)", c, e.cfg.TotalColumns)
	}
	return nil
}
