package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"ownergraph/internal/app"
	"ownergraph/internal/platform/config"
	"ownergraph/internal/platform/logger"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/requestcontext"
)

// openEngine wires the engine the same way the server does. Commands act as
// the CLI actor and log to stderr so stdout stays machine readable.
func openEngine(ctx context.Context) (context.Context, *app.App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return ctx, nil, err
	}
	if cfg.Database.URL == "" {
		return ctx, nil, fmt.Errorf("DATABASE_URL is required")
	}
	log := logger.NewWithWriter(os.Stderr, cfg.Log)
	engine, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return ctx, nil, err
	}
	return requestcontext.WithActorID(ctx, id.ActorCLI), engine, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
