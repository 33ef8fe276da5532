// =============================================================================
// BuildingSync Migration Tools - Transform Commands
// =============================================================================
//
// This file defines the 'transform' and 'transform-all' commands, which apply
// an XSLT stylesheet (v2 -> v3 by default) to BuildingSync documents.
//
// COMMAND USAGE:
//   bsync-migrate transform FILE [--xsl PATH] [--output PATH]
//   bsync-migrate transform-all DIR [--xsl PATH] [--out-dir DIR] [--pattern GLOB]
//
// OUTPUT NAMING:
//   Each result keeps the base name of its source and is written to the
//   working directory, or to --out-dir in batch mode. A file is never written
//   over its own source. FILE "-" reads standard input and writes standard
//   output.
//
// BATCH PROCESSING:
//   Files are transformed one after the other. A failing file is reported and
//   skipped; the command exits non-zero once every file has been attempted
//   if any of them failed.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/buildingsync/bsync-migrate/internal/transformer"
	"github.com/buildingsync/bsync-migrate/internal/xslt"
	"github.com/buildingsync/bsync-migrate/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	stylesheetPath string
	outputPath     string
	outDir         string
	pattern        string
	unsorted       bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var transformCmd = &cobra.Command{
	Use:   "transform FILE",
	Short: "Apply an XSLT stylesheet to one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransform,
}

var transformAllCmd = &cobra.Command{
	Use:   "transform-all DIR",
	Short: "Apply an XSLT stylesheet to every document in a directory",
	Long: `The transform-all command applies the stylesheet to every file in DIR
matching the pattern (default *.xml), in lexical order. Failures are reported
per file and do not stop the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runTransformAll,
}

func init() {
	for _, c := range []*cobra.Command{transformCmd, transformAllCmd} {
		c.Flags().StringVar(&stylesheetPath, "xsl", "", "Path to the XSLT stylesheet (default from config, v2_to_v3.xsl)")
	}
	transformCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path to write the result to (default: source base name in the working directory)")

	transformAllCmd.Flags().StringVar(&outDir, "out-dir", "", "Directory to write results to (default from config, the working directory)")
	transformAllCmd.Flags().StringVar(&pattern, "pattern", "", "Glob selecting the documents to transform (default from config, *.xml)")
	transformAllCmd.Flags().BoolVar(&unsorted, "unsorted", false, "Process files in directory order instead of lexical order")

	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(transformAllCmd)
}

// loadStylesheet compiles the stylesheet named by --xsl or the configuration.
func loadStylesheet() (*xslt.Stylesheet, error) {
	path := stylesheetPath
	if path == "" {
		path = appConfig.Transform.Stylesheet
	}
	return xslt.Load(path)
}

// =============================================================================
// COMMAND FUNCTIONS
// =============================================================================

func runTransform(cmd *cobra.Command, args []string) error {
	sheet, err := loadStylesheet()
	if err != nil {
		return err
	}
	t := transformer.New(sheet, logger)

	source := args[0]
	if source == "-" {
		return t.TransformReader(cmd.InOrStdin(), cmd.OutOrStdout(), "stdin")
	}

	output := outputPath
	if output == "" {
		output = utils.OutputPathFor(source, "")
	}
	if err := t.Transform(source, output); err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", green("✓"), source, output)
	return nil
}

func runTransformAll(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	sheet, err := loadStylesheet()
	if err != nil {
		return err
	}

	settings := appConfig.Transform
	if pattern != "" {
		settings.Pattern = pattern
	}
	if outDir != "" {
		settings.OutputDir = outDir
	}

	src, err := transformer.NewGlobSource(dir, settings.Pattern)
	if err != nil {
		return err
	}
	src.Sorted = settings.SortedEnabled() && !unsorted

	results := transformer.New(sheet, logger).TransformAll(src, settings.OutputDir)
	printResults(cmd, results)

	if _, failed := transformer.Summarize(results); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// printResults prints one line per file followed by the totals.
func printResults(cmd *cobra.Command, results []transformer.Result) {
	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, r := range results {
		if r.Succeeded() {
			fmt.Fprintf(out, "  %s %s -> %s\n", green("✓"), r.Source, r.Output)
		} else {
			fmt.Fprintf(out, "  %s %s: %v\n", red("✗"), r.Source, r.Err)
		}
	}

	succeeded, failed := transformer.Summarize(results)
	fmt.Fprintf(out, "\n%d succeeded, %d failed\n", succeeded, failed)
}
