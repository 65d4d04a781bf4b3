package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"reachtracker.dev/internal/persistence/settings"
)

// resolveLocations maps names to addresses. Unknown and address-less names
// are reported and skipped.
func (a *app) resolveLocations(names []string) ([]int64, error) {
	g, err := a.loadWorld()
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, name := range names {
		l, ok := g.Location(name)
		if !ok || !l.HasAddress {
			fmt.Fprintf(a.errOut, "unknown location %q\n", name)
			continue
		}
		out = append(out, l.Address)
	}
	return out, nil
}

func newIgnoreCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <location>...",
		Short: "Hide locations from the in-logic list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			addrs, err := a.resolveLocations(args)
			if err != nil {
				return err
			}
			return a.store.Ignore(a.cfg.Scope(), addrs...)
		},
	}
}

func newUnignoreCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unignore <location>...",
		Short: "Show previously ignored locations again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			addrs, err := a.resolveLocations(args)
			if err != nil {
				return err
			}
			return a.store.Unignore(a.cfg.Scope(), addrs...)
		},
	}
}

func newListIgnoredCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-ignored",
		Short: "Print ignored locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			g, err := a.loadWorld()
			if err != nil {
				return err
			}
			ignored, err := a.store.Ignored(a.cfg.Scope())
			if err != nil {
				return err
			}
			for _, addr := range slices.Sorted(maps.Keys(ignored)) {
				if l, ok := g.LocationByAddress(addr); ok {
					fmt.Fprintln(a.out, l.Name)
				} else {
					fmt.Fprintf(a.out, "#%d\n", addr)
				}
			}
			return nil
		},
	}
}

func newResetIgnoredCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-ignored",
		Short: "Clear the ignored list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			return a.store.ResetIgnored(a.cfg.Scope())
		},
	}
}

func newCollectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collect <item>...",
		Short: "Add items by hand; they count as progression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			g, err := a.loadWorld()
			if err != nil {
				return err
			}
			for _, name := range args {
				if !g.KnownItem(name) {
					fmt.Fprintf(a.errOut, "unknown item %q\n", name)
					continue
				}
				if err := a.store.AddManualItem(a.cfg.Scope(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newResetCollectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-collect",
		Short: "Remove every item added with collect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			return a.store.ResetManualItems(a.cfg.Scope())
		},
	}
}

func newSetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <format|hide_excluded|show_glitched> <value>",
		Short: "Store a display setting for this slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			key, value := args[0], args[1]
			switch key {
			case settings.KeyFormat, settings.KeyHideExcluded, settings.KeyShowGlitched:
			default:
				return fmt.Errorf("unknown setting %q", key)
			}
			probe := a.cfg
			if err := probe.ApplyOverrides(map[string]string{key: value}); err != nil {
				return err
			}
			return a.store.Set(a.cfg.Scope(), key, value)
		},
	}
}
