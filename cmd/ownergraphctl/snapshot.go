package main

import "github.com/spf13/cobra"

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture and compare point-in-time ownership snapshots",
	}
	cmd.AddCommand(snapshotCaptureCmd())
	cmd.AddCommand(snapshotCompareCmd())
	return cmd
}
