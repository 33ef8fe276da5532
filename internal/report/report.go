// =============================================================================
// BuildingSync Migration Tools - Change Report
// =============================================================================
//
// This module exports the migration log entries of a run to an XLSX workbook
// so that reviewers can audit every value a migration rewrote, and reads such
// a workbook back.
//
// WORKBOOK LAYOUT:
//   Sheet "Changes", header on row 1, one change per row from row 2:
//
//   | Run | Source | Path | Old Value | New Value |
//
// =============================================================================

package report

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/buildingsync/bsync-migrate/internal/types"
)

// SheetName is the worksheet holding the changes.
const SheetName = "Changes"

// Header is the first row of the worksheet.
var Header = []string{"Run", "Source", "Path", "Old Value", "New Value"}

// Entry is one migration log entry together with where it came from.
type Entry struct {
	// RunID identifies the invocation that produced the change.
	RunID string

	// Source is the migrated document.
	Source string

	types.Change
}

// NewEntries tags changes with their run and source document.
func NewEntries(runID, source string, changes []types.Change) []Entry {
	return lo.Map(changes, func(c types.Change, _ int) Entry {
		return Entry{RunID: runID, Source: source, Change: c}
	})
}

// Write saves entries to a new workbook at path, replacing any existing file.
// The header row is written even when there are no entries.
func Write(path string, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := lo.Map(Header, func(h string, _ int) interface{} { return h })
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{entry.RunID, entry.Source, entry.Path, entry.Old, entry.New}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "C", "C", 80); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Read loads the entries of a workbook written by Write.
func Read(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("report has no header row")
	}

	var entries []Entry
	for _, row := range rows[1:] {
		// GetRows trims trailing empty cells.
		cell := func(i int) string {
			if i < len(row) {
				return row[i]
			}
			return ""
		}
		entries = append(entries, Entry{
			RunID:  cell(0),
			Source: cell(1),
			Change: types.Change{Path: cell(2), Old: cell(3), New: cell(4)},
		})
	}
	return entries, nil
}
