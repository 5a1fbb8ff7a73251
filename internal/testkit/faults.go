package testkit

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var ErrInjectedFault = errors.New("injected fault")

// Transform mirrors transform.Transform.
type Transform interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// FaultyTransform wraps a transform and fails encode or decode calls once
// the respective budget of successful calls is spent. A negative budget
// never fails.
type FaultyTransform struct {
	inner   Transform
	encodes atomic.Int64
	decodes atomic.Int64
}

// NewFaultyTransform returns a transform that allows okEncodes successful
// encodes and okDecodes successful decodes before returning ErrInjectedFault.
func NewFaultyTransform(inner Transform, okEncodes, okDecodes int64) *FaultyTransform {
	f := &FaultyTransform{inner: inner}
	f.encodes.Store(okEncodes)
	f.decodes.Store(okDecodes)
	return f
}

func (f *FaultyTransform) Name() string { return f.inner.Name() }

func (f *FaultyTransform) Encode(plain []byte) ([]byte, error) {
	if spend(&f.encodes) {
		return nil, ErrInjectedFault
	}
	return f.inner.Encode(plain)
}

func (f *FaultyTransform) Decode(stored []byte) ([]byte, error) {
	if spend(&f.decodes) {
		return nil, ErrInjectedFault
	}
	return f.inner.Decode(stored)
}

// spend reports whether the budget is exhausted, consuming one unit if not.
func spend(budget *atomic.Int64) bool {
	for {
		n := budget.Load()
		if n < 0 {
			return false
		}
		if n == 0 {
			return true
		}
		if budget.CompareAndSwap(n, n-1) {
			return false
		}
	}
}
