// Package export renders snapshot comparisons as spreadsheets.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"ownergraph/internal/snapshot/models"
)

const (
	SheetSummary = "Summary"
	SheetChanges = "Changes"
	SheetDeltas  = "Deltas"
)

var (
	changesHeader = []any{"change", "owner_person_id", "relationship_type", "ubo_id", "field", "old", "new"}
	deltasHeader  = []any{"kind", "person_or_controller_id", "controlled_id", "control_type", "baseline", "current", "delta"}
)

// WriteComparison writes cmp as an XLSX workbook with a Summary, a Changes
// and a Deltas sheet.
func WriteComparison(w io.Writer, cmp *models.Comparison) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	for _, name := range []string{SheetChanges, SheetDeltas} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create %s sheet: %w", name, err)
		}
	}

	if err := writeRows(f, SheetSummary, summaryRows(cmp)); err != nil {
		return err
	}
	if err := writeRows(f, SheetChanges, changeRows(cmp)); err != nil {
		return err
	}
	if err := writeRows(f, SheetDeltas, deltaRows(cmp)); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryRows(cmp *models.Comparison) [][]any {
	return [][]any{
		{"subject_id", cmp.SubjectID.String()},
		{"baseline_id", cmp.BaselineID.String()},
		{"baseline_captured_at", cmp.BaselineCapturedAt.UTC().Format(time.RFC3339)},
		{"current_id", cmp.CurrentID.String()},
		{"current_captured_at", cmp.CurrentCapturedAt.UTC().Format(time.RFC3339)},
		{"has_changes", strconv.FormatBool(cmp.HasChanges)},
		{"added", len(cmp.Added)},
		{"removed", len(cmp.Removed)},
		{"changed", len(cmp.Changed)},
		{"ownership_deltas", len(cmp.OwnershipDeltas)},
		{"control_deltas", len(cmp.ControlDeltas)},
	}
}

func changeRows(cmp *models.Comparison) [][]any {
	rows := [][]any{changesHeader}
	for _, e := range cmp.Added {
		rows = append(rows, []any{"ADDED", e.OwnerPersonID.String(), string(e.RelationshipType), e.UBOID.String(), "", "", ""})
	}
	for _, e := range cmp.Removed {
		rows = append(rows, []any{"REMOVED", e.OwnerPersonID.String(), string(e.RelationshipType), e.UBOID.String(), "", "", ""})
	}
	for _, c := range cmp.Changed {
		for _, fc := range c.Changes {
			rows = append(rows, []any{"CHANGED", c.OwnerPersonID.String(), string(c.RelationshipType), c.CurrentUBOID.String(), fc.Field, fc.Old, fc.New})
		}
	}
	return rows
}

func deltaRows(cmp *models.Comparison) [][]any {
	rows := [][]any{deltasHeader}
	for _, d := range cmp.OwnershipDeltas {
		rows = append(rows, []any{"OWNERSHIP", d.PersonID.String(), "", "", d.Baseline, d.Current, d.Delta})
	}
	for _, d := range cmp.ControlDeltas {
		rows = append(rows, []any{"CONTROL_" + string(d.Change), d.Control.ControllerID.String(), d.Control.ControlledID.String(), string(d.Control.ControlType), "", "", ""})
	}
	return rows
}
