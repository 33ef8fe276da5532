// =============================================================================
// BuildingSync Migration Tools - Migrate Command
// =============================================================================
//
// This file defines the 'migrate' command, which upgrades a single document
// from BuildingSync 2.4 to 2.5.
//
// COMMAND USAGE:
//   bsync-migrate migrate FROM_FILE [flags]
//
// FLAGS:
//   --to_file     : Where to write the result (default: overwrite FROM_FILE)
//   --rounding    : half_even, half_away or truncate (default from config)
//   --no-comment  : Do not insert the provenance comment
//   --report      : Also export the changes to an XLSX workbook
//
// Every rewritten value is logged at info level as
//   changing <path> value from <old> to <new>
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildingsync/bsync-migrate/internal/migrator"
	"github.com/buildingsync/bsync-migrate/internal/report"
	"github.com/buildingsync/bsync-migrate/internal/types"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	toFile     string
	rounding   string
	noComment  bool
	reportPath string
)

// =============================================================================
// MIGRATE COMMAND DEFINITION
// =============================================================================

var migrateCmd = &cobra.Command{
	Use:   "migrate FROM_FILE",
	Short: "Migrate a BuildingSync 2.4 document to 2.5",
	Long: `The migrate command stamps the document with version 2.5.0, records a
provenance comment as the first child of the root element, and rewrites every
auc:UsefulLife value as an integer.

The document is fully migrated in memory before anything is written: if the
file cannot be read, is not well-formed, or holds a non-numeric UsefulLife,
the command aborts and no output is produced.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&toFile, "to_file", "", "Path to write the migrated document to (default: overwrite FROM_FILE)")
	migrateCmd.Flags().StringVar(&rounding, "rounding", "", "Rounding mode: half_even, half_away or truncate (default from config)")
	migrateCmd.Flags().BoolVar(&noComment, "no-comment", false, "Do not insert the provenance comment")
	migrateCmd.Flags().StringVar(&reportPath, "report", "", "Export the changes to this XLSX workbook")

	rootCmd.AddCommand(migrateCmd)
}

// runMigrate is the main function for the migrate command.
func runMigrate(cmd *cobra.Command, args []string) error {
	fromFile := args[0]

	migration := appConfig.Migration
	if rounding != "" {
		migration.RoundingMode = rounding
	}
	options, err := migrator.OptionsFromConfig(migration)
	if err != nil {
		return err
	}
	if noComment {
		options.InsertProvenanceComment = false
	}

	m := migrator.New(options, logger)
	result, err := m.MigrateFile(fromFile, toFile)
	if err != nil {
		switch types.KindOf(err) {
		case types.ErrNotFound, types.ErrParse:
			return fmt.Errorf("file could not be read, aborting: %w", err)
		}
		return fmt.Errorf("migration aborted: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s (version %s, %d of %d values changed)\n",
		green("✓"), result.Source, result.Destination, result.Version,
		len(result.Changes), result.Matched)

	if reportPath != "" {
		entries := report.NewEntries(runID, result.Source, result.Changes)
		if err := report.Write(reportPath, entries); err != nil {
			return err
		}
		logger.Info("Wrote change report", zap.String("report", reportPath), zap.Int("changes", len(entries)))
	}

	return nil
}
