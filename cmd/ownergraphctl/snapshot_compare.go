package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ownergraph/internal/snapshot/export"
	id "ownergraph/pkg/domain"
)

func snapshotCompareCmd() *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "compare <baseline> <current>",
		Short: "Diff two snapshots of the same subject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotCompare(cmd, args[0], args[1], xlsxPath)
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the comparison as a workbook to this path")
	return cmd
}

func runSnapshotCompare(cmd *cobra.Command, rawBaseline, rawCurrent, xlsxPath string) error {
	baseline, err := id.ParseSnapshotID(rawBaseline)
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	current, err := id.ParseSnapshotID(rawCurrent)
	if err != nil {
		return fmt.Errorf("current: %w", err)
	}

	ctx, engine, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer engine.Close()

	cmp, err := engine.Snapshots.Compare(ctx, baseline, current)
	if err != nil {
		return err
	}

	if xlsxPath != "" {
		f, err := os.Create(xlsxPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", xlsxPath, err)
		}
		defer f.Close()
		if err := export.WriteComparison(f, cmp); err != nil {
			return err
		}
	}
	return printJSON(cmp)
}
