package core

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Config groups everything a registry needs: the deployment layout it
// computes assignments for and where and how it keeps them.
type Config struct {
	Dir string // registry root

	Profile   DeploymentConfig
	Catalog   CatalogConfig
	Transform TransformConfig
	Prune     PruneConfig
}

// DeploymentConfig holds the constants that vary between deployment
// profiles. One engine serves every profile.
type DeploymentConfig struct {
	Name                      string `mapstructure:"name"`
	TotalSubnets              uint64 `mapstructure:"total_subnets"`
	TotalColumns              uint64 `mapstructure:"total_columns"`
	DefaultCustodySubnetCount uint64 `mapstructure:"default_custody_subnet_count"`
}

type CatalogConfig struct {
	Dir string
}

type TransformConfig struct {
	Name      string
	ZstdLevel int
}

type PruneConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
	RunEvery   time.Duration
}

const (
	ProfileDefault = "default"
	ProfileCompact = "compact"
)

// DefaultProfile is the 4-of-128 layout: one column per subnet.
func DefaultProfile() DeploymentConfig {
	return DeploymentConfig{
		Name:                      ProfileDefault,
		TotalSubnets:              128,
		TotalColumns:              128,
		DefaultCustodySubnetCount: 4,
	}
}

// CompactProfile is the 2-of-32 layout: four columns per subnet.
func CompactProfile() DeploymentConfig {
	return DeploymentConfig{
		Name:                      ProfileCompact,
		TotalSubnets:              32,
		TotalColumns:              128,
		DefaultCustodySubnetCount: 2,
	}
}

// ProfileByName returns one of the built-in profiles.
func ProfileByName(name string) (DeploymentConfig, error) {
	switch name {
	case ProfileDefault, "":
		return DefaultProfile(), nil
	case ProfileCompact:
		return CompactProfile(), nil
	default:
		return DeploymentConfig{}, errors.Wrapf(ErrInvalidConfig, "unknown profile %q", name)
	}
}

// Validate checks the structural invariants of the layout.
func (c DeploymentConfig) Validate() error {
	if c.TotalSubnets == 0 {
		return errors.Wrap(ErrInvalidConfig, "total subnets must be positive")
	}
	if c.TotalColumns == 0 {
		return errors.Wrap(ErrInvalidConfig, "total columns must be positive")
	}
	if c.TotalColumns%c.TotalSubnets != 0 {
		return errors.Wrapf(ErrInvalidConfig, "total columns %d is not a multiple of total subnets %d",
			c.TotalColumns, c.TotalSubnets)
	}
	if c.DefaultCustodySubnetCount > c.TotalSubnets {
		return errors.Wrapf(ErrInvalidConfig, "default custody subnet count %d exceeds total subnets %d",
			c.DefaultCustodySubnetCount, c.TotalSubnets)
	}
	return nil
}

// ColumnsPerSubnet assumes a validated config.
func (c DeploymentConfig) ColumnsPerSubnet() uint64 {
	return c.TotalColumns / c.TotalSubnets
}
