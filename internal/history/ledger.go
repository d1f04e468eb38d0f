// Package history reads and writes the migrations history table: the ledger
// recording which migrations have been applied to a database.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const DefaultTable = "__MigrationsHistory"

const (
	migrationIDColumn    = "MigrationId"
	productVersionColumn = "ProductVersion"
)

// ErrScriptNotSupported is returned by the conditional script fragments on
// providers without a procedural block to wrap DDL in.
var ErrScriptNotSupported = errors.New("conditional migration scripts are not supported by this provider")

// Row is one applied migration.
type Row struct {
	MigrationID    string `db:"MigrationId"`
	ProductVersion string `db:"ProductVersion"`
}

// Dialect is the provider-specific part of the ledger.
type Dialect interface {
	// ExistsQuery returns a query counting tables named by its single bind
	// parameter in the current database or schema.
	ExistsQuery() string
	MigrationIDType() string
	ProductVersionType() string
	// BeginIf opens a block executed only when query returns a row
	// (exists) or returns none (!exists).
	BeginIf(exists bool, query string) (string, error)
	EndIf() (string, error)
}

// Unconditional is embedded by dialects that cannot guard statements.
type Unconditional struct{}

func (Unconditional) BeginIf(bool, string) (string, error) { return "", ErrScriptNotSupported }
func (Unconditional) EndIf() (string, error)               { return "", ErrScriptNotSupported }

type Ledger struct {
	Table   string
	dialect Dialect
	gen     *sqlgen.Generator
}

func New(table string, d Dialect, gen *sqlgen.Generator) *Ledger {
	if table == "" {
		table = DefaultTable
	}
	return &Ledger{Table: table, dialect: d, gen: gen}
}

func (l *Ledger) ident(name string) string {
	return l.gen.Dialect().QuoteIdentifier(name)
}

func (l *Ledger) literal(v string) string {
	return l.gen.Dialect().QuoteLiteral(v)
}

// ExistsContext reports whether the history table exists.
func (l *Ledger) ExistsContext(ctx context.Context, q sqlx.QueryerContext) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var n int
	if err := sqlx.GetContext(ctx, q, &n, l.dialect.ExistsQuery(), l.Table); err != nil {
		return false, fmt.Errorf("check history table %s: %w", l.Table, err)
	}
	return n > 0, nil
}

func (l *Ledger) Exists(q sqlx.QueryerContext) (bool, error) {
	return l.ExistsContext(context.Background(), q)
}

// AppliedMigrationsContext returns the ledger rows ordered by migration id.
// The table must exist.
func (l *Ledger) AppliedMigrationsContext(ctx context.Context, q sqlx.QueryerContext) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		l.ident(migrationIDColumn), l.ident(productVersionColumn), l.ident(l.Table), l.ident(migrationIDColumn))
	var rows []Row
	if err := sqlx.SelectContext(ctx, q, &rows, query); err != nil {
		return nil, fmt.Errorf("read history table %s: %w", l.Table, err)
	}
	// Collations differ between providers; ids compare ordinally.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].MigrationID < rows[j].MigrationID })
	return rows, nil
}

func (l *Ledger) AppliedMigrations(q sqlx.QueryerContext) ([]Row, error) {
	return l.AppliedMigrationsContext(context.Background(), q)
}

func (l *Ledger) tableOperation() operation.CreateTable {
	return operation.CreateTable{
		Name: l.Table,
		Columns: []model.Column{
			{Name: migrationIDColumn, Type: l.dialect.MigrationIDType()},
			{Name: productVersionColumn, Type: l.dialect.ProductVersionType()},
		},
		PrimaryKey: &model.Key{Name: "PK_" + l.Table, Columns: []string{migrationIDColumn}},
	}
}

// CreateScript returns the CREATE TABLE statement for the history table.
func (l *Ledger) CreateScript() (string, error) {
	cmds, err := l.gen.Generate([]operation.Operation{l.tableOperation()}, nil)
	if err != nil {
		return "", err
	}
	if len(cmds) != 1 {
		return "", fmt.Errorf("history table rendered to %d statements", len(cmds))
	}
	return cmds[0].Text(), nil
}

func (l *Ledger) CreateIfNotExistsScript() (string, error) {
	script, err := l.CreateScript()
	if err != nil {
		return "", err
	}
	return strings.Replace(script, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1), nil
}

func (l *Ledger) InsertScript(row Row) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s)\nVALUES (%s, %s);",
		l.ident(l.Table), l.ident(migrationIDColumn), l.ident(productVersionColumn),
		l.literal(row.MigrationID), l.literal(row.ProductVersion))
}

func (l *Ledger) DeleteScript(migrationID string) string {
	return fmt.Sprintf("DELETE FROM %s\nWHERE %s = %s;",
		l.ident(l.Table), l.ident(migrationIDColumn), l.literal(migrationID))
}

func (l *Ledger) rowQuery(migrationID string) string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		l.ident(l.Table), l.ident(migrationIDColumn), l.literal(migrationID))
}

// BeginIfNotExistsScript opens a block that runs only while migrationID is
// not recorded.
func (l *Ledger) BeginIfNotExistsScript(migrationID string) (string, error) {
	return l.dialect.BeginIf(false, l.rowQuery(migrationID))
}

// BeginIfExistsScript opens a block that runs only while migrationID is
// recorded.
func (l *Ledger) BeginIfExistsScript(migrationID string) (string, error) {
	return l.dialect.BeginIf(true, l.rowQuery(migrationID))
}

func (l *Ledger) EndIfScript() (string, error) {
	return l.dialect.EndIf()
}
