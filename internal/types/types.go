// =============================================================================
// BuildingSync Migration Tools - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - document
//   - migrator
//   - xslt
//   - transformer
//   - report
//
// =============================================================================

package types

import "fmt"

// =============================================================================
// MIGRATION LOG ENTRY
// =============================================================================

// Change records a single value rewritten by a migration.
// A Change is only produced when Old and New differ.
type Change struct {
	// Path is the structural path of the element within the document,
	// relative to the root element.
	// Example: "auc:Facilities/auc:Facility/auc:Measures/auc:Measure[2]/auc:UsefulLife"
	Path string

	// Old is the element text before migration.
	Old string

	// New is the element text after migration.
	New string
}

// String renders the change as the operator-facing log line.
func (c Change) String() string {
	return fmt.Sprintf("changing %s value from %s to %s", c.Path, c.Old, c.New)
}
