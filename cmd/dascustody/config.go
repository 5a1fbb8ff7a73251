package main

import (
	"time"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// fileConfig is the YAML layout read by --config.
type fileConfig struct {
	Dir        string                 `mapstructure:"dir"`
	Profile    string                 `mapstructure:"profile"`
	Deployment *core.DeploymentConfig `mapstructure:"deployment"`
	Transform  struct {
		Name      string `mapstructure:"name"`
		ZstdLevel int    `mapstructure:"zstd_level"`
	} `mapstructure:"transform"`
	Prune struct {
		Enabled    bool          `mapstructure:"enabled"`
		DefaultTTL time.Duration `mapstructure:"default_ttl"`
		RunEvery   time.Duration `mapstructure:"run_every"`
	} `mapstructure:"prune"`
}

// overrides carries the global flags the user actually set.
type overrides struct {
	dir     *string
	profile *string
}

func loadConfig(path string, o overrides) (core.Config, error) {
	var fc fileConfig
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return core.Config{}, errors.Wrapf(core.ErrInvalidConfig, "failed to read config file %s: %v", path, err)
		}
		if err := v.Unmarshal(&fc); err != nil {
			return core.Config{}, errors.Wrapf(core.ErrInvalidConfig, "failed to unmarshal config: %v", err)
		}
	}

	if o.dir != nil {
		fc.Dir = *o.dir
	}

	var profile core.DeploymentConfig
	switch {
	case o.profile != nil:
		p, err := core.ProfileByName(*o.profile)
		if err != nil {
			return core.Config{}, err
		}
		profile = p
	case fc.Deployment != nil:
		profile = *fc.Deployment
		if err := profile.Validate(); err != nil {
			return core.Config{}, err
		}
	default:
		p, err := core.ProfileByName(fc.Profile)
		if err != nil {
			return core.Config{}, err
		}
		profile = p
	}

	return core.Config{
		Dir:     fc.Dir,
		Profile: profile,
		Transform: core.TransformConfig{
			Name:      fc.Transform.Name,
			ZstdLevel: fc.Transform.ZstdLevel,
		},
		Prune: core.PruneConfig{
			Enabled:    fc.Prune.Enabled,
			DefaultTTL: fc.Prune.DefaultTTL,
			RunEvery:   fc.Prune.RunEvery,
		},
	}, nil
}
