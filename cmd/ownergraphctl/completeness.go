package main

import (
	"github.com/spf13/cobra"

	completeness "ownergraph/internal/completeness/service"
	id "ownergraph/pkg/domain"
)

func completenessCmd() *cobra.Command {
	var asOf string
	var threshold float64
	cmd := &cobra.Command{
		Use:   "completeness <subject>",
		Short: "Check whether a subject's disclosed ownership is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompleteness(cmd, args[0], asOf, threshold)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC 3339 instant to check at (default now)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Override the configured ownership threshold")
	return cmd
}

func runCompleteness(cmd *cobra.Command, rawSubject, rawAsOf string, threshold float64) error {
	subject, err := id.ParseEntityID(rawSubject)
	if err != nil {
		return err
	}
	at, err := parseAsOf(rawAsOf)
	if err != nil {
		return err
	}

	ctx, engine, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Completeness.Check(ctx, subject, completeness.CheckOptions{Threshold: threshold, AsOf: at})
	if err != nil {
		return err
	}
	return printJSON(report)
}
