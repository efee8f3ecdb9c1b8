package main

import (
	"time"

	"github.com/spf13/cobra"

	resolver "ownergraph/internal/resolver/service"
	id "ownergraph/pkg/domain"
)

func resolveCmd() *cobra.Command {
	var asOf string
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "resolve <subject> [subject...]",
		Short: "Resolve every ownership chain ending at one or more subjects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, asOf, maxDepth)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC 3339 instant to resolve at (default now)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Override the configured depth limit")
	return cmd
}

func runResolve(cmd *cobra.Command, rawSubjects []string, rawAsOf string, maxDepth int) error {
	subjects := make([]id.EntityID, 0, len(rawSubjects))
	for _, raw := range rawSubjects {
		subject, err := id.ParseEntityID(raw)
		if err != nil {
			return err
		}
		subjects = append(subjects, subject)
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

	opts := resolver.Options{AsOf: at, MaxDepth: maxDepth}
	if len(subjects) == 1 {
		result, err := engine.Resolver.Resolve(ctx, subjects[0], opts)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	results, err := engine.Resolver.ResolveMany(ctx, subjects, opts)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func parseAsOf(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &at, nil
}
