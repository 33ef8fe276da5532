// =============================================================================
// BuildingSync Migration Tools - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (bsync-migrate)
//   ├── migrateCmd      (bsync-migrate migrate)
//   ├── transformCmd    (bsync-migrate transform)
//   ├── transformAllCmd (bsync-migrate transform-all)
//   └── versionCmd      (bsync-migrate version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration file, or the built-in defaults without one
//   3. Building the logger shared by every subcommand
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildingsync/bsync-migrate/internal/config"
	"github.com/buildingsync/bsync-migrate/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
// Empty means built-in defaults.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// appConfig, logger and runID are set up before any subcommand runs.
var (
	appConfig *config.Config
	logger    *zap.Logger
	runID     string
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bsync-migrate",
	Short: "BuildingSync migration tools - upgrade documents between schema versions",
	Long: `bsync-migrate upgrades BuildingSync XML documents from one schema version
to the next.

Two kinds of migration are supported:
  - Field-level version migrations (2.4 -> 2.5): stamp the version attribute,
    record provenance and coerce UsefulLife values to integers.
  - Structural transformations (v2 -> v3): apply an XSLT stylesheet to one
    document or to every document in a directory.

Example Usage:
  bsync-migrate migrate building.xml --to_file building-2.5.xml
  bsync-migrate transform building.xml --xsl v2_to_v3.xsl
  bsync-migrate transform-all ../examples --xsl v2_to_v3.xsl --out-dir v3`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		l, id, err := logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}

		appConfig, logger, runID = cfg, l, id
		logger.Debug("Loaded configuration", zap.String("config", cfgFile))
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},

	// Without a subcommand, print the help message.
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// --config flag: optional YAML configuration file.
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"Path to a YAML configuration file (default: built-in settings)",
	)

	// --verbose flag: enables debug logging.
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}
