package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pmatheus/nsrl-filter/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write ` + config.ConfigFile + ` with the default settings into the current
directory. It is picked up automatically by later runs from that directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			path, err := config.Initialize(cwd)
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("%s already exists in %s", config.ConfigFile, cwd)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}
