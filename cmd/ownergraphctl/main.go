package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "ownergraphctl",
		Short:        "Operate the beneficial ownership engine against its Postgres stores",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(completenessCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
