package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func newCheckCmd(o *rootOptions) *cobra.Command {
	var list, count, asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the locations currently in logic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.snapshot(cmd.Context(), o)
			if err != nil {
				return err
			}
			switch {
			case asJSON:
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			case count:
				fmt.Fprintln(a.out, len(snap.InLogic))
			case list:
				for _, name := range snap.InLogic {
					fmt.Fprintln(a.out, name)
				}
				if a.cfg.Display.ShowGlitched {
					for _, name := range snap.Glitched {
						fmt.Fprintln(a.out, name+" (glitched)")
					}
				}
			default:
				for _, line := range snap.Readable {
					fmt.Fprintln(a.out, line)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print location names only")
	cmd.Flags().BoolVar(&count, "count", false, "print the number of locations in logic")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the whole snapshot as JSON")
	cmd.MarkFlagsMutuallyExclusive("list", "count", "json")
	return cmd
}

func newInventoryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Print received items, progression items and collected events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.snapshot(cmd.Context(), o)
			if err != nil {
				return err
			}
			printCounts := func(title string, m map[string]int) {
				fmt.Fprintf(a.out, "%s:\n", title)
				for _, name := range slices.Sorted(maps.Keys(m)) {
					fmt.Fprintf(a.out, "  %s x%d\n", name, m[name])
				}
			}
			printCounts("items", snap.AllItems)
			printCounts("progression", snap.ProgressionItems)
			fmt.Fprintln(a.out, "events:")
			for _, e := range snap.Events {
				fmt.Fprintf(a.out, "  %s\n", e)
			}
			return nil
		},
	}
}

func newPathCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <region or location>",
		Short: "Print the entrances walked from the start to a region or location",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.snapshot(cmd.Context(), o)
			if err != nil {
				return err
			}
			name := strings.Join(args, " ")
			path, err := snap.Path(name)
			if err != nil {
				return err
			}
			if len(path) == 0 {
				fmt.Fprintf(a.out, "no path to %s\n", name)
				return nil
			}
			for _, step := range path {
				fmt.Fprintln(a.out, step)
			}
			return nil
		},
	}
}

func newExplainCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <region, location or entrance>",
		Short: "Show which access requirements are met",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			snap, err := a.snapshot(cmd.Context(), o)
			if err != nil {
				return err
			}
			ex, err := snap.Explain(strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, line := range ex.Lines() {
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}
}
