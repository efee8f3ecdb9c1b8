package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	snapshotmodels "ownergraph/internal/snapshot/models"
	snapshot "ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
)

func snapshotCaptureCmd() *cobra.Command {
	var reason string
	var trigger string
	cmd := &cobra.Command{
		Use:   "capture <subject>",
		Short: "Freeze the current ownership state of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(reason) == "" {
				return fmt.Errorf("--reason is required")
			}
			return runSnapshotCapture(cmd, args[0], reason, trigger)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the snapshot is taken")
	cmd.Flags().StringVar(&trigger, "trigger", string(snapshotmodels.TriggerManual), "Capture trigger")
	return cmd
}

func runSnapshotCapture(cmd *cobra.Command, rawSubject, reason, rawTrigger string) error {
	subject, err := id.ParseEntityID(rawSubject)
	if err != nil {
		return err
	}
	trigger, err := snapshotmodels.ParseTrigger(rawTrigger)
	if err != nil {
		return err
	}

	ctx, engine, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer engine.Close()

	snap, err := engine.Snapshots.CaptureWithBackoff(ctx, snapshot.CaptureCommand{
		SubjectID: subject,
		Reason:    strings.TrimSpace(reason),
		Trigger:   trigger,
	}, snapshot.DefaultRetryPolicy)
	if err != nil {
		return err
	}
	return printJSON(snap)
}
