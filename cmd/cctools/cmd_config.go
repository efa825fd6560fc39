package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// initConfigCmd writes the effective configuration to a file
var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the effective configuration as YAML",
	Long: `Writes the configuration currently in effect (defaults, config file,
environment and flag overrides) to path, or to the --config path when no
argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst := cfgPath
		if len(args) == 1 {
			dst = args[0]
		}
		if err := cfg.Save(dst); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dst)
		return nil
	},
}
