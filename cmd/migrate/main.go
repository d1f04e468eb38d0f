package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirajehossain/relmigrate/internal/checksum"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/migrator"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const (
	exitOK        = 0
	exitMismatch  = 2
	exitLocked    = 3
	exitFail      = 4
	exitPlanError = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, checksum.ErrMismatch):
		return exitMismatch
	case errors.Is(err, lock.ErrLockTimeout):
		return exitLocked
	case errors.Is(err, errUsage),
		errors.Is(err, migrator.ErrAmbiguousTarget),
		errors.Is(err, history.ErrScriptNotSupported),
		errors.Is(err, sqlgen.ErrOperationNotSupported):
		return exitPlanError
	}
	return exitFail
}

func rootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "relmigrate",
		Short: "Schema migrations for SQLite, PostgreSQL and MySQL",
		Long: `relmigrate applies, reverts and scripts schema migrations described as
YAML documents (<digits>_<name>.yaml) holding up/down operations and the
model snapshot after the migration.

Targets are a full migration id, its name, or 0 for the empty database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f.register(root)

	root.AddCommand(upCmd(f))
	root.AddCommand(downCmd(f))
	root.AddCommand(statusCmd(f))
	root.AddCommand(scriptCmd(f))
	root.AddCommand(createCmd(f))
	return root
}
