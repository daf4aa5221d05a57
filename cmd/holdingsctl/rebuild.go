package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type rebuildCmd struct {
	env   *env
	scope ownerScope
}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "recompute holdings snapshots from transactions" }
func (*rebuildCmd) Usage() string {
	return `rebuild (-owner <user id> | -all)

  Throws away and recomputes the stored holdings of one owner or of every
  owner. Assets whose transactions no longer aggregate are reported and
  left untouched.
`
}

func (c *rebuildCmd) SetFlags(f *flag.FlagSet) {
	c.scope.setFlags(f)
}

func (c *rebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.scope.valid() {
		fmt.Fprintln(c.env.stderr, "Error: exactly one of -owner or -all is required.")
		return subcommands.ExitUsageError
	}

	store, err := c.env.open(ctx)
	if err != nil {
		fmt.Fprintf(c.env.stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()
	service := c.env.service(store)

	owners, err := c.scope.owners(ctx, service)
	if err != nil {
		fmt.Fprintf(c.env.stderr, "Error listing owners: %v\n", err)
		return subcommands.ExitFailure
	}

	status := subcommands.ExitSuccess
	total := 0
	for _, owner := range owners {
		n, err := service.Rebuild(ctx, owner)
		total += n
		if err != nil {
			fmt.Fprintf(c.env.stderr, "%s: %v\n", owner, err)
			status = subcommands.ExitFailure
		}
	}
	fmt.Fprintf(c.env.stdout, "rebuilt %d assets for %d owners\n", total, len(owners))
	return status
}
