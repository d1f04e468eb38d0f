package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mirajehossain/relmigrate/internal/config"
	"github.com/mirajehossain/relmigrate/internal/db"
	"github.com/mirajehossain/relmigrate/internal/dialect"
	"github.com/mirajehossain/relmigrate/internal/fsutil"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/logger"
	"github.com/mirajehossain/relmigrate/internal/migrator"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

var errUsage = errors.New("usage")

type flags struct {
	config         string
	provider       string
	dsn            string
	adminDSN       string
	dir            string
	json           bool
	verbose        bool
	lockTimeout    int
	table          string
	productVersion string
}

func (f *flags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "optional YAML config path")
	pf.StringVar(&f.provider, "provider", "", "database provider: sqlite, postgres or mysql (or DB_PROVIDER)")
	pf.StringVar(&f.dsn, "dsn", "", "database DSN (or DB_DSN)")
	pf.StringVar(&f.adminDSN, "admin-dsn", "", "DSN used to create the database (or DB_ADMIN_DSN)")
	pf.StringVar(&f.dir, "dir", "./migrations", "migrations directory (or MIGRATIONS_DIR)")
	pf.BoolVar(&f.json, "json", false, "JSON logs and status output")
	pf.BoolVar(&f.verbose, "verbose", false, "log every executed statement")
	pf.IntVar(&f.lockTimeout, "lock-timeout", 30, "advisory lock timeout in seconds (or LOCK_TIMEOUT_SEC)")
	pf.StringVar(&f.table, "table", "", "history table name (or MIGRATIONS_TABLE)")
	pf.StringVar(&f.productVersion, "product-version", "", "version recorded with each applied migration")
}

// load layers config file, environment and explicitly set flags.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadYAML(f.config)
	if err != nil {
		return nil, err
	}
	cfg = config.MergeEnv(cfg)

	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if changed("provider") {
		cfg.Provider = f.provider
	}
	if changed("dsn") {
		cfg.DSN = f.dsn
	}
	if changed("admin-dsn") {
		cfg.AdminDSN = f.adminDSN
	}
	if changed("dir") || cfg.Dir == "" {
		cfg.Dir = f.dir
	}
	if changed("json") {
		cfg.JSON = f.json
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("lock-timeout") {
		cfg.LockTimeoutSec = f.lockTimeout
	}
	if changed("table") {
		cfg.MigrationsTable = f.table
	}
	if changed("product-version") {
		cfg.ProductVersion = f.productVersion
	}
	return cfg, nil
}

// env is everything a command needs to talk to one database.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	provider dialect.Provider
	dbName   string
	db       *sqlx.DB
	admin    *sqlx.DB
	mig      *migrator.Migrator
}

func (f *flags) setup(cmd *cobra.Command) (*env, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	log := newLogger(cfg.JSON, cfg.Verbose)

	p, err := dialect.Lookup(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	e := &env{cfg: cfg, log: log, provider: p}

	dsn, err := p.NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: dsn: %v", errUsage, err)
	}
	if e.dbName, err = p.DatabaseName(dsn); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if e.db, err = db.Open(p.DriverName(), dsn); err != nil {
		return nil, err
	}

	adminDSN := cfg.AdminDSN
	if adminDSN == "" {
		if adminDSN, err = p.AdminDSN(dsn); err != nil {
			e.close()
			return nil, err
		}
	}
	var admin sqlx.ExtContext
	if adminDSN != "" {
		if e.admin, err = db.Open(p.DriverName(), adminDSN); err != nil {
			e.close()
			return nil, err
		}
		admin = e.admin
	}

	policy := cfg.RetryPolicy(p.DefaultRetry())
	transient := p.Classifier(cfg.Retry.TransientCodes)
	cr, err := p.Creator(dsn, admin, policy, transient)
	if err != nil {
		e.close()
		return nil, err
	}

	reg, err := loadRegistry(cfg.Dir)
	if err != nil {
		e.close()
		return nil, err
	}

	gen := sqlgen.New(p.SQLDialect())
	e.mig, err = migrator.New(migrator.Config{
		DB:             e.db,
		Registry:       reg,
		Ledger:         history.New(cfg.MigrationsTable, p.HistoryDialect(), gen),
		Generator:      gen,
		Creator:        cr,
		BatchSeparator: cfg.Separator(p.BatchSeparator()),
		ProductVersion: cfg.ProductVersion,
		Retry:          policy,
		IsTransient:    transient,
		Logger:         log,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

// offline builds a migrator for rendering only. No DSN is needed and no
// connection is opened.
func (f *flags) offline(cmd *cobra.Command) (*env, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateOffline(); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	log := newLogger(cfg.JSON, cfg.Verbose)

	p, err := dialect.Lookup(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	e := &env{cfg: cfg, log: log, provider: p}

	reg, err := loadRegistry(cfg.Dir)
	if err != nil {
		e.close()
		return nil, err
	}
	gen := sqlgen.New(p.SQLDialect())
	e.mig, err = migrator.NewOffline(migrator.Config{
		Registry:       reg,
		Ledger:         history.New(cfg.MigrationsTable, p.HistoryDialect(), gen),
		Generator:      gen,
		BatchSeparator: cfg.Separator(p.BatchSeparator()),
		ProductVersion: cfg.ProductVersion,
		Logger:         log,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func loadRegistry(dir string) (*migrator.Registry, error) {
	docs, err := fsutil.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	reg := migrator.NewRegistry()
	if err := fsutil.RegisterAll(reg, docs); err != nil {
		return nil, err
	}
	return reg, nil
}

// withLock runs fn holding the provider's advisory lock. The lock is taken
// on the admin connection when there is one, since the target database may
// not exist yet.
func (e *env) withLock(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	lockDB := e.db
	if e.admin != nil {
		lockDB = e.admin
	}
	l := e.provider.Locker(lockDB, lock.KeyFor(e.dbName, e.cfg.MigrationsTable))
	if err := l.Acquire(ctx, e.cfg.LockTimeout()); err != nil {
		e.log.Error("failed to acquire lock", map[string]any{"error": err.Error(), "key": l.Key()})
		return err
	}
	e.log.Debug("lock acquired", map[string]any{"key": l.Key()})
	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
			e.log.Error("failed to release lock", map[string]any{"error": rerr.Error(), "key": l.Key()})
			err = multierr.Append(err, rerr)
		}
	}()
	return fn(ctx)
}

func (e *env) close() error {
	var err error
	if e.db != nil {
		err = multierr.Append(err, e.db.Close())
	}
	if e.admin != nil {
		err = multierr.Append(err, e.admin.Close())
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
	return err
}

// newLogger writes to stderr, leaving stdout to scripts and status, and tags
// every line with a per-run id.
func newLogger(asJSON, verbose bool) *logger.Logger {
	return logger.New(asJSON, logger.WithWriter(os.Stderr), logger.WithVerbose(verbose)).
		With(map[string]any{"run_id": uuid.NewString()})
}
