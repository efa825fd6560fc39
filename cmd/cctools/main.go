// Package main implements the cctools command-line interface.
//
// cctools computes harmonic-drive corrected field values from a model file
// (domain, mesh samples and drive parameters), either one point at a time,
// as a CSV batch, from a study script, or continuously while the model is
// edited.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/cctools/internal/config"
	"github.com/chazu/cctools/internal/logging"
)

var (
	// Global flags
	cfgPath       string
	verbose       bool
	logsDir       string
	rule          string
	extrapolation string

	// Set up by PersistentPreRunE
	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cctools",
	Short: "cctools - harmonic drive and mesh field calculator",
	Long: `cctools combines an interpolated mesh field with harmonic drive
corrections inside a validated 3D domain.

A model file (JSON or YAML) declares the domain, the mesh samples and the
drive parameters. Queries name a point, optionally a drive and its
excitation, and the field component to report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logsDir != "" {
			c.LogsDir = logsDir
		}
		if verbose {
			c.Logging.Level = "debug"
		}
		if rule != "" {
			c.Calculation.Rule = rule
		}
		if extrapolation != "" {
			c.Calculation.Extrapolation = extrapolation
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config %s: %w", cfgPath, err)
		}

		l, err := logging.New(c.LoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, logger = c, l
		logger.Debug("configuration loaded",
			zap.String("config", cfgPath),
			zap.String("log_file", logger.Path()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "cctools.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logsDir, "logs-dir", "", "Directory for log files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&rule, "rule", "", "Combination rule: additive or multiplicative (overrides config)")
	rootCmd.PersistentFlags().StringVar(&extrapolation, "extrapolation", "", "Out-of-domain policy: none, nearest or clamp (overrides config)")

	rootCmd.AddCommand(
		computeCmd,
		batchCmd,
		runCmd,
		drivesCmd,
		getCmd,
		setCmd,
		findCmd,
		inspectCmd,
		watchCmd,
		initConfigCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
