package dascustody

import (
	"github.com/agenthands/dascustody/pkg/core"
)

type Config = core.Config
type DeploymentConfig = core.DeploymentConfig
type CatalogConfig = core.CatalogConfig
type TransformConfig = core.TransformConfig
type PruneConfig = core.PruneConfig

const (
	ProfileDefault = core.ProfileDefault
	ProfileCompact = core.ProfileCompact
)

// DefaultProfile returns the 4-of-128 layout.
func DefaultProfile() DeploymentConfig { return core.DefaultProfile() }

// CompactProfile returns the 2-of-32 layout.
func CompactProfile() DeploymentConfig { return core.CompactProfile() }

// ProfileByName resolves "default" or "compact"; an empty name is "default".
func ProfileByName(name string) (DeploymentConfig, error) { return core.ProfileByName(name) }
