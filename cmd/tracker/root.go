package main

import (
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	world      string
	slot       string
	server     string
	password   string
	offline    bool
	settle     time.Duration
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Track which multiworld locations are in logic for one slot",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "tracker.yaml", "path to tracker.yaml")
	pf.StringVar(&o.world, "world", "", "world file (overrides world_file)")
	pf.StringVar(&o.slot, "slot", "", "slot name (overrides slot)")
	pf.StringVar(&o.server, "server", "", "server address (overrides server)")
	pf.StringVar(&o.password, "password", "", "room password (overrides password)")

	query := []*cobra.Command{
		newCheckCmd(o),
		newInventoryCmd(o),
		newPathCmd(o),
		newExplainCmd(o),
	}
	for _, c := range query {
		c.Flags().BoolVar(&o.offline, "offline", false, "do not connect; use only locally stored items")
		c.Flags().DurationVar(&o.settle, "settle", 500*time.Millisecond, "wait this long for session traffic to go quiet")
	}
	root.AddCommand(newRunCmd(o))
	root.AddCommand(query...)
	root.AddCommand(
		newIgnoreCmd(o),
		newUnignoreCmd(o),
		newListIgnoredCmd(o),
		newResetIgnoredCmd(o),
		newCollectCmd(o),
		newResetCollectCmd(o),
		newSetCmd(o),
	)
	return root
}
