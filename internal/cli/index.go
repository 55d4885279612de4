package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/pmatheus/nsrl-filter/internal/config"
	"github.com/spf13/cobra"
)

func newIndexCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "index [database]",
		Short: "Create the hash indexes without classifying anything",
		Long: `Create an index on every hash column of the reference table that does not
already have one. Indexes that exist, under any name, are left alone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initContext(cmd, f, positional(args, 0), "", func(*config.Config) bool { return false })
			if err != nil {
				return err
			}
			defer c.Close()

			schema, err := c.Store.Probe(cmd.Context(), c.Config.Table)
			if err != nil {
				return err
			}
			report, err := c.Store.EnsureIndexes(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			fmt.Fprintf(out, "Reference table: %s\n", schema)
			for _, col := range report.Created {
				green.Fprintf(out, "  created index on %s\n", col)
			}
			for _, col := range report.Existing {
				fmt.Fprintf(out, "  %s already indexed\n", col)
			}
			for _, col := range report.Skipped {
				yellow.Fprintf(out, "  %s skipped (views cannot be indexed)\n", col)
			}
			return nil
		},
	}
}

func newProbeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [database]",
		Short: "Show where the reference hashes are and whether they are indexed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initContext(cmd, f, positional(args, 0), "", func(*config.Config) bool { return true })
			if err != nil {
				return err
			}
			defer c.Close()

			schema, err := c.Store.Probe(cmd.Context(), c.Config.Table)
			if err != nil {
				return err
			}
			state, err := c.Store.IndexState(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kind := "Table:"
			if schema.IsView {
				kind = "View:"
			}
			fmt.Fprintf(out, "Driver:  %s\n", c.Store.Dialect().Name())
			fmt.Fprintf(out, "%-8s %s\n", kind, schema.Table)

			cols := make([]string, 0, len(state))
			for col := range state {
				cols = append(cols, col)
			}
			sort.Strings(cols)

			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			for _, col := range cols {
				if state[col] {
					green.Fprintf(out, "  %-8s indexed\n", col)
				} else {
					red.Fprintf(out, "  %-8s not indexed\n", col)
				}
			}
			return nil
		},
	}
}
