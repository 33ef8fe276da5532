// =============================================================================
// BuildingSync Migration Tools - Main Entry Point
// =============================================================================
//
// This is the main entry point for the bsync-migrate CLI application. It
// delegates command execution to the cmd package.
//
// USAGE:
//   bsync-migrate migrate FROM_FILE     - Migrate a 2.4 document to 2.5
//   bsync-migrate transform FILE        - Apply an XSLT stylesheet to one document
//   bsync-migrate transform-all DIR     - Apply an XSLT stylesheet to a directory
//   bsync-migrate version               - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Document model, migrator, XSLT engine, transformer
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/buildingsync/bsync-migrate/cmd"
)

func main() {
	cmd.Execute()
}
