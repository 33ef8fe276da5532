// =============================================================================
// BuildingSync Migration Tools - File Manager Utility
// =============================================================================
//
// This module provides the file handling shared by the migrate and transform
// commands:
//   - File discovery in an input directory
//   - Output path naming for batch transforms
//   - Output directory management
//
// NAMING STRATEGY:
//   A batch transform writes each result under the output directory with the
//   base name of its source, so input/a.xml becomes <out>/a.xml. Sources
//   with the same base name in different directories overwrite each other;
//   discovery never recurses, so this cannot happen within one batch.
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// DefaultPattern is the glob used when discovery is given no pattern.
const DefaultPattern = "*.xml"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager resolves input and output paths for a batch run.
type FileManager struct {
	// InputDir is the directory scanned for source documents.
	InputDir string

	// OutputDir is the directory results are written to.
	// An empty value means the current working directory.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:  inputDir,
		OutputDir: outputDir,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureOutputDir creates the output directory if it doesn't exist.
//
// RETURNS:
//   - An error if the directory cannot be created.
func (fm *FileManager) EnsureOutputDir() error {
	if fm.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(fm.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFiles scans the input directory for files matching the pattern.
//
// PARAMETERS:
//   - pattern: A glob pattern to match files (e.g., "*.xml").
//              If empty, defaults to "*.xml".
//   - sorted:  Return the paths in lexical order. Otherwise the order is
//              whatever the filesystem reports.
//
// RETURNS:
//   - A slice of file paths. Directories are skipped.
//   - An error if the pattern is malformed.
func (fm *FileManager) DiscoverInputFiles(pattern string, sorted bool) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	var files []string
	if sorted {
		matches, err := filepath.Glob(filepath.Join(fm.InputDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan input directory: %w", err)
		}
		files = matches
	} else {
		matches, err := unorderedGlob(fm.InputDir, pattern)
		if err != nil {
			return nil, err
		}
		files = matches
	}

	// Filter out directories.
	result := slices.DeleteFunc(files, func(file string) bool {
		info, err := os.Stat(file)
		return err != nil || info.IsDir()
	})

	if sorted {
		slices.Sort(result)
	}
	return result, nil
}

// unorderedGlob matches directory entries in the order the filesystem
// returns them.
func unorderedGlob(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		// A missing directory matches nothing, as with filepath.Glob.
		return nil, nil
	}
	defer d.Close()

	names, err := d.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	var files []string
	for _, name := range names {
		if ok, _ := filepath.Match(pattern, name); ok {
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files, nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// OutputPath returns where the result for source is written: the base name
// of source inside the output directory.
func (fm *FileManager) OutputPath(source string) string {
	return OutputPathFor(source, fm.OutputDir)
}

// OutputPathFor returns the base name of source joined to outDir. An empty
// outDir yields the bare base name, relative to the working directory.
func OutputPathFor(source, outDir string) string {
	name := filepath.Base(source)
	if outDir == "" {
		return name
	}
	return filepath.Join(outDir, name)
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// SamePath reports whether a and b name the same file. When either does not
// exist yet the absolute paths are compared instead.
func SamePath(a, b string) bool {
	aInfo, aErr := os.Stat(a)
	bInfo, bErr := os.Stat(b)
	if aErr == nil && bErr == nil {
		return os.SameFile(aInfo, bInfo)
	}

	absA, aErr := filepath.Abs(a)
	absB, bErr := filepath.Abs(b)
	return aErr == nil && bErr == nil && absA == absB
}
