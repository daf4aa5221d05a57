// Command holdingsctl maintains the derived holdings table: it applies the
// schema and rebuilds or verifies snapshots from the transaction log.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/cittellg-bit/cryptotracker-sub001/internal/config"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/db"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/logging"
	"github.com/cittellg-bit/cryptotracker-sub001/internal/portfolio"
)

// env is shared by every subcommand.
type env struct {
	open   func(ctx context.Context) (db.Store, error)
	stdout io.Writer
	stderr io.Writer
	log    logrus.FieldLogger
}

func (e *env) service(store db.Store) *portfolio.Service {
	return portfolio.NewService(store, nil, portfolio.Options{Logger: e.log})
}

func register(commander *subcommands.Commander, e *env) {
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&migrateCmd{env: e}, "")
	commander.Register(&rebuildCmd{env: e}, "")
	commander.Register(&verifyCmd{env: e}, "")
}

func main() {
	cfg, err := config.LoadForCLI()
	log := logging.Init(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}

	e := &env{
		open: func(ctx context.Context) (db.Store, error) {
			return db.Open(ctx, cfg.DatabaseURL)
		},
		stdout: os.Stdout,
		stderr: os.Stderr,
		log:    log,
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander, e)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// ownerScope resolves the -owner / -all pair shared by rebuild and verify.
type ownerScope struct {
	owner string
	all   bool
}

func (s *ownerScope) setFlags(f *flag.FlagSet) {
	f.StringVar(&s.owner, "owner", "", "Process a single owner (user id)")
	f.BoolVar(&s.all, "all", false, "Process every owner with transactions or holdings")
}

func (s *ownerScope) valid() bool {
	return (s.owner != "") != s.all
}

func (s *ownerScope) owners(ctx context.Context, service *portfolio.Service) ([]string, error) {
	if !s.all {
		return []string{s.owner}, nil
	}
	return service.ListOwners(ctx)
}
