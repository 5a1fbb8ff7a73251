package dascustody

import (
	"github.com/agenthands/dascustody/pkg/catalog"
	"github.com/agenthands/dascustody/pkg/transform"
)

// NewRegistryForTest constructs a Registry with an injected catalog and
// transform. The pruner is not started. Test-only.
func NewRegistryForTest(cfg Config, cat catalog.Catalog, tr transform.Transform, opts ...Option) (Registry, error) {
	engine, err := New(cfg.Profile)
	if err != nil {
		return nil, err
	}
	return newRegistry(cfg, engine, cat, tr, opts...), nil
}
