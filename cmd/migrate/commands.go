package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/mirajehossain/relmigrate/internal/checksum"
	"github.com/mirajehossain/relmigrate/internal/fsutil"
	"github.com/mirajehossain/relmigrate/internal/migrator"
	"github.com/mirajehossain/relmigrate/internal/model"
)

func upCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "up [target]",
		Short: "Apply pending migrations, up to target when given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return migrate(cmd, f, target)
		},
	}
}

func downCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "down <target>",
		Short: "Revert applied migrations newer than target (0 reverts everything)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, f, args[0])
		},
	}
}

func migrate(cmd *cobra.Command, f *flags, target string) (err error) {
	e, err := f.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	start := time.Now()
	err = e.withLock(cmd.Context(), func(ctx context.Context) error {
		return e.mig.MigrateContext(ctx, target)
	})
	if err != nil {
		e.log.Error("migrate failed", map[string]any{"error": err.Error(), "target": target})
		return err
	}
	e.log.Info("migrate complete", map[string]any{"target": target, "duration_ms": time.Since(start).Milliseconds()})
	return nil
}

func statusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := f.setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			st, err := e.mig.StatusContext(cmd.Context())
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st, e.cfg.JSON)
		},
	}
}

func printStatus(w io.Writer, st []migrator.Status, asJSON bool) error {
	if asJSON {
		if st == nil {
			st = []migrator.Status{}
		}
		return json.NewEncoder(w).Encode(st)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range st {
		state := "pending"
		switch {
		case !s.Registered:
			state = "applied (unknown)"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.ID, state)
	}
	return tw.Flush()
}

func scriptCmd(f *flags) *cobra.Command {
	var (
		idempotent bool
		output     string
		verify     string
	)
	cmd := &cobra.Command{
		Use:   "script [from] [to]",
		Short: "Render migrations between two points as a SQL script",
		Long: `script renders the migrations after from up to and including to. An
omitted from is 0 and an omitted to is the latest migration; a from newer
than to renders the revert script. The database is not contacted.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := f.offline(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			var from, to string
			if len(args) > 0 {
				from = args[0]
			}
			if len(args) > 1 {
				to = args[1]
			}
			script, err := e.mig.GenerateScript(from, to, idempotent)
			if err != nil {
				return err
			}

			sum := checksum.Script(script)
			if output == "" {
				if _, err := io.WriteString(cmd.OutOrStdout(), script); err != nil {
					return err
				}
			} else if err := os.WriteFile(output, []byte(script), 0o644); err != nil {
				return err
			}
			e.log.Info("script generated", map[string]any{"from": from, "to": to, "sha256": sum, "output": output})

			if verify != "" {
				return checksum.Verify(script, verify)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&idempotent, "idempotent", false, "guard every statement with a history table check")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the script to a file instead of stdout")
	cmd.Flags().StringVar(&verify, "verify", "", "fail unless the script's SHA-256 matches")
	return cmd
}

func createCmd(f *flags) *cobra.Command {
	var modelPath string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a migration document from the model difference",
		Long: `create diffs the model of the newest migration against --model and
writes <timestamp>_<name>.yaml with the up and down operations. Without
--model the document is empty and carries the current model forward.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg.JSON, cfg.Verbose)

			docs, err := fsutil.ScanDir(cfg.Dir)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			previous := fsutil.LatestModel(docs)
			target := previous
			if modelPath != "" {
				if target, err = fsutil.ReadModel(modelPath); err != nil {
					return err
				}
			}
			p, err := scaffold(cfg.Dir, args[0], previous, target, time.Now())
			if err != nil {
				log.Error("create failed", map[string]any{"error": err.Error()})
				return err
			}
			log.Info("created migration", map[string]any{"path": p})
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "YAML model snapshot the new migration should reach")
	return cmd
}

func scaffold(dir, name string, previous, target *model.Model, now time.Time) (string, error) {
	id, err := migrator.NewID(name, now)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	mig, err := migrator.Scaffold(id, previous, target)
	if err != nil {
		return "", err
	}
	return fsutil.WriteDocument(dir, mig.Document())
}
