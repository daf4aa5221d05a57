package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type migrateCmd struct {
	env *env
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate

  Applies the embedded schema to DATABASE_URL. Safe to run repeatedly.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, err := c.env.open(ctx)
	if err != nil {
		fmt.Fprintf(c.env.stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		fmt.Fprintf(c.env.stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.env.stdout, "schema applied")
	return subcommands.ExitSuccess
}
