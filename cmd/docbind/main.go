package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/reoring/docbind/internal/config"
	"github.com/reoring/docbind/store/boltstore"
)

// errUsage marks argument errors; main exits 2 for them.
var errUsage = errors.New("usage")

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
	flags func(fs *flag.FlagSet, cfg *config.CLI)
}

// env is what every command runs against.
type env struct {
	cfg    config.CLI
	store  *boltstore.Store
	log    *slog.Logger
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintf(os.Stderr, "docbind: %v\n", err)
		}
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "docbind: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer, cmds []*command) {
	fmt.Fprintln(w, "docbind inspects a document store\n\nUsage:")
	for _, c := range cmds {
		fmt.Fprintf(w, "  docbind %s\n", c.usage)
	}
	fmt.Fprintln(w, "\nEvery command accepts -db, -format and -log-level, which override\nDOCBIND_DB, DOCBIND_FORMAT and DOCBIND_LOG_LEVEL. serve reads DOCBIND_ADDR.")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmds := commandList()
	if len(args) < 1 {
		usage(stderr, cmds)
		return errUsage
	}
	var cmd *command
	for _, c := range cmds {
		if c.name == args[0] {
			cmd = c
		}
	}
	if cmd == nil {
		usage(stderr, cmds)
		return errUsage
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.Bind(fs)
	if cmd.flags != nil {
		cmd.flags(fs, &cfg)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := cfg.Logger()
	st, err := boltstore.Open(cfg.DB, boltstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer st.Close()
	log.Debug("docbind: opened store", "path", cfg.DB, "command", cmd.name)

	return cmd.run(ctx, &env{cfg: cfg, store: st, log: log, stdout: stdout}, fs.Args())
}
