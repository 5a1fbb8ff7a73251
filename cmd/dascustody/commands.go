package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agenthands/dascustody/pkg/core"
	"github.com/agenthands/dascustody/pkg/dascustody"
	"github.com/agenthands/dascustody/pkg/nodeid"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func (a *app) printer(cmd *cobra.Command) printer {
	return printer{w: cmd.OutOrStdout(), format: a.output}
}

// countFlag registers --count and returns the options it implies.
func countFlag(cmd *cobra.Command) func() []dascustody.QueryOption {
	var n uint64
	cmd.Flags().Uint64Var(&n, "count", 0, "custody subnet count (default: profile default)")
	return func() []dascustody.QueryOption {
		if !cmd.Flags().Changed("count") {
			return nil
		}
		return []dascustody.QueryOption{dascustody.WithCount(n)}
	}
}

func newSubnetCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subnet-count",
		Short: "Print the total number of custody subnets of the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printer(cmd).value("total_subnets", a.engine.TotalSubnetCount())
		},
	}
}

func newSubnetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subnets <node-id-hex>",
		Short: "Compute the custody subnets of a node id given as bare hex",
		Args:  cobra.ExactArgs(1),
	}
	opts := countFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		subnets, err := a.engine.CustodySubnets(args[0], opts()...)
		if err != nil {
			return err
		}
		return a.printer(cmd).list("subnets", subnets)
	}
	return cmd
}

func newPeerSubnetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer-subnets <peer-id>",
		Short: "Compute the custody subnets of a libp2p peer id",
		Args:  cobra.ExactArgs(1),
	}
	opts := countFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		subnets, err := a.engine.CustodySubnetsFromPeerID(args[0], opts()...)
		if err != nil {
			return err
		}
		return a.printer(cmd).list("subnets", subnets)
	}
	return cmd
}

func newColumnsCmd(a *app) *cobra.Command {
	var (
		subnets []uint
		node    string
	)
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Expand custody subnets into data columns",
		Example: `  dascustody columns --subnets 1,27 --profile compact
  dascustody columns --node-id 5e17a23d...2b88 --count 8`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().UintSliceVar(&subnets, "subnets", nil, "comma separated subnet indices")
	cmd.Flags().StringVar(&node, "node-id", "", "node id as bare hex")
	opts := countFlag(cmd)
	cmd.MarkFlagsMutuallyExclusive("subnets", "node-id")
	cmd.MarkFlagsOneRequired("subnets", "node-id")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var (
			columns []dascustody.ColumnIndex
			err     error
		)
		if cmd.Flags().Changed("node-id") {
			columns, err = a.engine.CustodyColumnsForNode(node, opts()...)
		} else {
			in := make([]dascustody.SubnetIndex, len(subnets))
			for i, s := range subnets {
				in[i] = dascustody.SubnetIndex(s)
			}
			columns, err = a.engine.CustodyColumns(in)
		}
		if err != nil {
			return err
		}
		return a.printer(cmd).list("columns", columns)
	}
	return cmd
}

func newNodeIDCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "node-id <peer-id>",
		Short: "Derive the node id of a libp2p peer id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.engine.NodeIDFromPeerID(args[0])
			if err != nil {
				return err
			}
			return a.printer(cmd).value("node_id", id.Hex())
		},
	}
}

// target is a registry subject named on the command line: either a full
// 0x-prefixed node id or a peer id.
type target struct {
	node nodeid.ID
	peer string
}

func parseTarget(s string) (target, error) {
	if strings.HasPrefix(s, "0x") {
		id, err := nodeid.ParseString(s)
		if err != nil {
			return target{}, err
		}
		return target{node: id}, nil
	}
	return target{peer: s}, nil
}

func newTrackCmd(a *app) *cobra.Command {
	var (
		ttl      time.Duration
		deadline string
	)
	cmd := &cobra.Command{
		Use:   "track <peer-id|0xnode-id>",
		Short: "Compute an assignment and store it in the registry",
		Args:  cobra.ExactArgs(1),
	}
	var count uint64
	cmd.Flags().Uint64Var(&count, "count", 0, "custody subnet count (default: profile default)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the entry after this long")
	cmd.Flags().StringVar(&deadline, "deadline", "", "expire the entry at this RFC 3339 time")
	cmd.MarkFlagsMutuallyExclusive("ttl", "deadline")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		t, err := parseTarget(args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("count") && count == 0 {
			return errors.Wrap(core.ErrInvalidInput, "--count must be positive")
		}

		meta := dascustody.TrackMeta{Count: count}
		if cmd.Flags().Changed("ttl") {
			meta.TTL = &ttl
		}
		if deadline != "" {
			d, err := time.Parse(time.RFC3339, deadline)
			if err != nil {
				return errors.Wrapf(core.ErrInvalidInput, "invalid deadline %q: %v", deadline, err)
			}
			meta.Deadline = &d
		}

		return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
			var asg dascustody.Assignment
			if t.peer != "" {
				asg, err = reg.Track(cmd.Context(), t.peer, meta)
			} else {
				asg, err = reg.TrackNode(cmd.Context(), t.node, meta)
			}
			if err != nil {
				return err
			}
			return a.printer(cmd).assignment(asg)
		})
	}
	return cmd
}

func newLookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <peer-id|0xnode-id>",
		Short: "Show a stored assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				var asg dascustody.Assignment
				if t.peer != "" {
					asg, err = reg.LookupPeer(cmd.Context(), t.peer)
				} else {
					asg, err = reg.Lookup(cmd.Context(), t.node)
				}
				if err != nil {
					return err
				}
				return a.printer(cmd).assignment(asg)
			})
		},
	}
}

func newColumnNodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "column-nodes <column>",
		Short: "List the tracked nodes custodying a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(core.ErrParse, "invalid column %q", args[0])
			}
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				nodes, err := reg.NodesForColumn(cmd.Context(), dascustody.ColumnIndex(col))
				if err != nil {
					return err
				}
				hexes := make([]string, len(nodes))
				for i, n := range nodes {
					hexes[i] = n.Hex()
				}
				return a.printer(cmd).list("nodes", hexes)
			})
		},
	}
}

func newForgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <peer-id|0xnode-id>",
		Short: "Remove an assignment from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				id := t.node
				if t.peer != "" {
					asg, err := reg.LookupPeer(cmd.Context(), t.peer)
					if err != nil {
						return err
					}
					id = asg.NodeID
				}
				if err := reg.Forget(cmd.Context(), id); err != nil {
					return err
				}
				return a.printer(cmd).value("forgotten", id.Hex())
			})
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove every registry entry whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				res, err := reg.Prune(cmd.Context())
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return a.printer(cmd).json(map[string]int{
						"expired": res.Expired,
						"purged":  res.Purged,
					})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\npurged:  %d\n", res.Expired, res.Purged)
				return err
			})
		},
	}
}

func (a *app) archiveResult(cmd *cobra.Command, res dascustody.ArchiveResult) error {
	if a.output == outputJSON {
		return a.printer(cmd).json(map[string]int{
			"records": res.Records,
			"skipped": res.Skipped,
		})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "records: %d\nskipped: %d\n", res.Records, res.Skipped)
	return err
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.car>",
		Short: "Write every stored assignment record to a CAR snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				res, err := reg.Export(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.archiveResult(cmd, res)
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.car>",
		Short: "Store the assignment records of a CAR snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRegistry(cmd.Context(), func(reg dascustody.Registry) error {
				res, err := reg.Import(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.archiveResult(cmd, res)
			})
		},
	}
}
