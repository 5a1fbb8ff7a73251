package main

import (
	"context"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/dascustody"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultDir = ".dascustody"

// app holds the global flags and the lazily built dependencies of one run.
type app struct {
	cfgFile string
	profile string
	dir     string
	output  string
	debug   bool

	cfg    core.Config
	log    *zap.Logger
	engine *dascustody.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "dascustody",
		Short: "Compute and track PeerDAS custody assignments",
		Long: `dascustody derives the custody subnets and data columns a node must
sample from its node id or libp2p peer id.

Pure queries (subnets, columns, node-id, ...) need no state. The track,
lookup, column-nodes, forget, prune, export and import commands work on an
on-disk registry under --dir.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.profile, "profile", core.ProfileDefault, "deployment profile (default|compact)")
	root.PersistentFlags().StringVar(&a.dir, "dir", defaultDir, "registry directory")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputText, "output format (text|json)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newSubnetCountCmd(a),
		newSubnetsCmd(a),
		newPeerSubnetsCmd(a),
		newColumnsCmd(a),
		newNodeIDCmd(a),
		newTrackCmd(a),
		newLookupCmd(a),
		newColumnNodesCmd(a),
		newForgetCmd(a),
		newPruneCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case outputText, outputJSON:
	default:
		return errors.Wrapf(core.ErrInvalidInput, "unknown output format %q", a.output)
	}

	var o overrides
	flags := cmd.Flags()
	if flags.Changed("dir") {
		o.dir = &a.dir
	}
	if flags.Changed("profile") {
		o.profile = &a.profile
	}

	cfg, err := loadConfig(a.cfgFile, o)
	if err != nil {
		return err
	}
	if cfg.Dir == "" {
		cfg.Dir = defaultDir
	}
	a.cfg = cfg

	if a.debug {
		a.log, err = zap.NewDevelopment()
	} else {
		a.log, err = zap.NewProduction()
	}
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}

	a.engine, err = dascustody.New(cfg.Profile)
	if err != nil {
		return err
	}
	a.log.Debug("configured",
		zap.String("profile", cfg.Profile.Name),
		zap.Uint64("total_subnets", cfg.Profile.TotalSubnets),
		zap.Uint64("total_columns", cfg.Profile.TotalColumns))
	return nil
}

// withRegistry opens the registry for the duration of fn. The background
// pruner is never started from the CLI; use the prune command.
func (a *app) withRegistry(ctx context.Context, fn func(reg dascustody.Registry) error) error {
	cfg := a.cfg
	cfg.Prune.Enabled = false

	reg, err := dascustody.OpenRegistry(ctx, cfg, dascustody.WithLogger(a.log))
	if err != nil {
		return err
	}
	err = fn(reg)
	if cerr := reg.Close(); err == nil {
		err = cerr
	}
	return err
}
