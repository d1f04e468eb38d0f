// Package migrator plans and runs schema migrations against a database, or
// renders them into a SQL script.
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/mirajehossain/relmigrate/internal/command"
	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/logger"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const tracerName = "github.com/mirajehossain/relmigrate/internal/migrator"

type Config struct {
	DB        *sqlx.DB          `validate:"required"`
	Registry  *Registry         `validate:"required"`
	Ledger    *history.Ledger   `validate:"required"`
	Generator *sqlgen.Generator `validate:"required"`
	Creator   creator.Creator   `validate:"required"`

	// BatchSeparator follows every statement in rendered scripts.
	BatchSeparator string
	ProductVersion string

	// Retry and IsTransient govern database creation, connection opening
	// and history table creation.
	Retry       retry.Policy
	IsTransient retry.Classifier `validate:"-"`

	Logger *logger.Logger `validate:"-"`
	Tracer trace.Tracer   `validate:"-"`
}

type Migrator struct {
	cfg     Config
	log     *logger.Logger
	tracer  trace.Tracer
	offline bool
}

func New(cfg Config) (*Migrator, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("migrator config: %w", err)
	}
	return newMigrator(cfg), nil
}

// NewOffline builds a migrator that only renders SQL: DB and Creator are not
// needed, and MigrateContext and StatusContext fail with ErrOffline.
func NewOffline(cfg Config) (*Migrator, error) {
	if err := validator.New().StructExcept(cfg, "DB", "Creator"); err != nil {
		return nil, fmt.Errorf("migrator config: %w", err)
	}
	m := newMigrator(cfg)
	m.offline = true
	return m, nil
}

func newMigrator(cfg Config) *Migrator {
	if cfg.ProductVersion == "" {
		cfg.ProductVersion = DefaultProductVersion
	}
	m := &Migrator{cfg: cfg, log: cfg.Logger, tracer: cfg.Tracer}
	if m.log == nil {
		m.log = logger.Nop()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

func (m *Migrator) Registry() *Registry { return m.cfg.Registry }

func (m *Migrator) Migrate(target string) error {
	return m.MigrateContext(context.Background(), target)
}

// MigrateContext brings the database to target: "" applies every pending
// migration, InitialDatabase reverts everything, anything else is resolved
// as an id or name. Each migration runs in its own transaction; a failure
// leaves earlier migrations committed.
func (m *Migrator) MigrateContext(ctx context.Context, target string) (err error) {
	ctx, span := m.tracer.Start(ctx, "migrator.Migrate", trace.WithAttributes(attribute.String("migration.target", target)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if m.offline {
		return ErrOffline
	}
	// Resolve before any SQL runs.
	if target != "" && target != InitialDatabase {
		if _, err := m.cfg.Registry.ResolveID(target); err != nil {
			return err
		}
	}

	if err := m.ensureDatabase(ctx); err != nil {
		return err
	}

	var conn *sqlx.Conn
	err = retry.Do(ctx, m.cfg.Retry, m.cfg.IsTransient, func(ctx context.Context) error {
		c, err := m.cfg.DB.Connx(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	defer func() {
		err = multierr.Append(err, conn.Close())
	}()

	if err := m.ensureHistory(ctx, conn); err != nil {
		return err
	}

	applied, err := m.cfg.Ledger.AppliedMigrationsContext(ctx, conn)
	if err != nil {
		return err
	}
	plan, err := m.cfg.Registry.Plan(applied, target)
	if err != nil {
		return err
	}
	if plan.Empty() {
		m.log.Info("database is up to date", map[string]any{"target": target, "applied": len(applied)})
		return nil
	}

	// Render the whole plan first so an unsupported operation fails the run
	// before anything is executed.
	type batch struct {
		id   string
		dir  Direction
		cmds []command.Command
	}
	var batches []batch
	for _, s := range plan.Revert {
		cmds, err := m.downSQL(s.Migration, s.Previous, s.RecordedID)
		if err != nil {
			return &MigrationError{ID: s.Migration.ID, Direction: Down, Err: err}
		}
		batches = append(batches, batch{s.Migration.ID, Down, cmds})
	}
	for _, s := range plan.Apply {
		cmds, err := m.GenerateUpSQL(s.Migration)
		if err != nil {
			return &MigrationError{ID: s.Migration.ID, Direction: Up, Err: err}
		}
		batches = append(batches, batch{s.Migration.ID, Up, cmds})
	}

	for _, b := range batches {
		if err := m.runBatch(ctx, conn, b.id, b.dir, b.cmds); err != nil {
			return err
		}
	}
	m.log.Info("migrations complete", map[string]any{"reverted": len(plan.Revert), "applied": len(plan.Apply)})
	return nil
}

func (m *Migrator) ensureDatabase(ctx context.Context) error {
	var exists bool
	err := retry.Do(ctx, m.cfg.Retry, m.cfg.IsTransient, func(ctx context.Context) error {
		ok, err := m.cfg.Creator.ExistsContext(ctx)
		exists = ok
		return err
	})
	if err != nil {
		return fmt.Errorf("check database: %w", err)
	}
	if exists {
		return nil
	}
	m.log.Info("creating database", nil)
	if err := m.cfg.Creator.CreateContext(ctx); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	return nil
}

func (m *Migrator) ensureHistory(ctx context.Context, conn *sqlx.Conn) error {
	ledger := m.cfg.Ledger
	script, err := ledger.CreateScript()
	if err != nil {
		return err
	}
	err = retry.Do(ctx, m.cfg.Retry, m.cfg.IsTransient, func(ctx context.Context) error {
		ok, err := ledger.ExistsContext(ctx, conn)
		if err != nil || ok {
			return err
		}
		m.log.Info("creating history table", map[string]any{"table": ledger.Table})
		return m.inTx(ctx, conn, func(tx *sqlx.Tx) error {
			return command.New(script).ExecContext(ctx, tx)
		})
	})
	if err != nil {
		return fmt.Errorf("create history table %s: %w", ledger.Table, err)
	}
	return nil
}

func (m *Migrator) runBatch(ctx context.Context, conn *sqlx.Conn, id string, dir Direction, cmds []command.Command) (err error) {
	ctx, span := m.tracer.Start(ctx, "migrator.Step", trace.WithAttributes(
		attribute.String("migration.id", id),
		attribute.String("migration.direction", string(dir)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			err = &MigrationError{ID: id, Direction: dir, Err: err}
		}
		span.End()
	}()

	if dir == Up {
		m.log.Info("applying migration", map[string]any{"migration": id})
	} else {
		m.log.Info("reverting migration", map[string]any{"migration": id})
	}
	return m.inTx(ctx, conn, func(tx *sqlx.Tx) error {
		for _, c := range cmds {
			m.log.Debug("executing command", map[string]any{"migration": id, "sql": c.Text()})
			if err := c.ExecContext(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing on success. The context is
// checked again before commit, and a failure after cancellation always
// matches the context error.
func (m *Migrator) inTx(ctx context.Context, conn *sqlx.Conn, fn func(tx *sqlx.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
		// Drivers report a cancelled statement with their own error.
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = multierr.Append(err, cerr)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}

// GenerateUpSQL renders m.Up against its target model followed by the
// history insert.
func (m *Migrator) GenerateUpSQL(mig *Migration) ([]command.Command, error) {
	cmds, err := m.cfg.Generator.Generate(mig.Up, mig.TargetModel)
	if err != nil {
		return nil, err
	}
	row := history.Row{MigrationID: mig.ID, ProductVersion: m.cfg.ProductVersion}
	return append(cmds, command.New(m.cfg.Ledger.InsertScript(row))), nil
}

// GenerateDownSQL renders mig.Down against previous's target model (nil
// previous means the empty database) followed by the history delete.
func (m *Migrator) GenerateDownSQL(mig, previous *Migration) ([]command.Command, error) {
	return m.downSQL(mig, previous, mig.ID)
}

// downSQL deletes the history row by ledgerID, the id as recorded, so a row
// stored in a different case is still removed under a case-sensitive
// collation.
func (m *Migrator) downSQL(mig, previous *Migration, ledgerID string) ([]command.Command, error) {
	if ledgerID == "" {
		ledgerID = mig.ID
	}
	cmds, err := m.cfg.Generator.Generate(mig.Down, previous.targetModel())
	if err != nil {
		return nil, err
	}
	return append(cmds, command.New(m.cfg.Ledger.DeleteScript(ledgerID))), nil
}
