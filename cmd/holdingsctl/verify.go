package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type verifyCmd struct {
	env    *env
	scope  ownerScope
	repair bool
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "report holdings that drifted from their transactions" }
func (*verifyCmd) Usage() string {
	return `verify (-owner <user id> | -all) [-repair]

  Recomputes every stored snapshot and prints the ones that differ. With
  -repair the drifting snapshots are rewritten. Exits 1 when drift remains.
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) {
	c.scope.setFlags(f)
	f.BoolVar(&c.repair, "repair", false, "Rewrite drifting snapshots")
}

func (c *verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	found, unrepaired := 0, 0
	for _, owner := range owners {
		drifts, err := service.Verify(ctx, owner, c.repair)
		if err != nil {
			fmt.Fprintf(c.env.stderr, "%s: %v\n", owner, err)
			return subcommands.ExitFailure
		}
		for _, d := range drifts {
			found++
			mark := "DRIFT"
			switch {
			case d.Repaired:
				mark = "FIXED"
			case d.Cleared:
				mark = "CLEARED"
				unrepaired++
			default:
				unrepaired++
			}
			fmt.Fprintf(c.env.stdout, "%s %s\n", mark, d)
		}
	}

	fmt.Fprintf(c.env.stdout, "checked %d owners: %d drifted, %d unrepaired\n", len(owners), found, unrepaired)
	if unrepaired > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
