// Package mysql is the MySQL provider, backed by go-sql-driver/mysql.
package mysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const Name = "mysql"

var defaultTransient = []uint16{
	1040, // ER_CON_COUNT_ERROR
	1205, // ER_LOCK_WAIT_TIMEOUT
	1213, // ER_LOCK_DEADLOCK
	1049, // ER_BAD_DB_ERROR, right after CREATE DATABASE
}

type Provider struct{}

func (Provider) Name() string           { return Name }
func (Provider) DriverName() string     { return "mysql" }
func (Provider) BatchSeparator() string { return "\n" }

func (Provider) SQLDialect() sqlgen.Dialect      { return Dialect{} }
func (Provider) HistoryDialect() history.Dialect { return History{} }

func (Provider) DefaultRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 6, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2}
}

func (Provider) Classifier(codes []string) retry.Classifier {
	set := map[uint16]bool{}
	for _, n := range defaultTransient {
		set[n] = true
	}
	if len(codes) > 0 {
		set = map[uint16]bool{}
		for _, c := range codes {
			if n, err := strconv.ParseUint(strings.TrimSpace(c), 10, 16); err == nil {
				set[uint16(n)] = true
			}
		}
	}
	return func(err error) bool {
		if retry.IsBadConn(err) || errors.Is(err, mysql.ErrInvalidConn) {
			return true
		}
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			return set[me.Number]
		}
		return false
	}
}

// NormalizeDSN ensures parseTime is on.
func (Provider) NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (Provider) DatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("mysql dsn has no database name")
	}
	return cfg.DBName, nil
}

// AdminDSN connects to the server without selecting a database.
func (Provider) AdminDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.DBName = ""
	return cfg.FormatDSN(), nil
}

func (p Provider) Creator(dsn string, admin sqlx.ExtContext, policy retry.Policy, transient retry.Classifier) (creator.Creator, error) {
	name, err := p.DatabaseName(dsn)
	if err != nil {
		return nil, err
	}
	return &creator.Server{Admin: admin, Name: name, Dialect: Server{}, Retry: policy, IsTransient: transient}, nil
}

func (Provider) Locker(db *sqlx.DB, key string) lock.Locker { return lock.NewMySQL(db, key) }

// Dialect renders MySQL DDL.
type Dialect struct{}

func (Dialect) Name() string { return Name }

func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) QuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (Dialect) Override(w *sqlgen.Writer, op operation.Operation, m *model.Model) (bool, error) {
	switch o := op.(type) {
	case operation.RenameTable:
		w.Append("RENAME TABLE ").Append(w.Ident(o.Name)).Append(" TO ").Append(w.Ident(o.NewName))
	case operation.AlterColumn:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" MODIFY COLUMN ")
		if err := w.ColumnDefinition(o.Column); err != nil {
			return false, err
		}
	case operation.RenameColumn:
		// CHANGE restates the full column definition, so the column has to
		// be found in the model the operations run against.
		col := m.Table(o.Table).Column(o.NewName)
		if col == nil {
			return false, fmt.Errorf("%w: rename of %s.%s needs the target model to contain column %s",
				sqlgen.ErrInvalidOperation, o.Table, o.Name, o.NewName)
		}
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" CHANGE ").Append(w.Ident(o.Name)).Append(" ")
		if err := w.ColumnDefinition(*col); err != nil {
			return false, err
		}
	case operation.DropPrimaryKey:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" DROP PRIMARY KEY")
	case operation.DropUniqueConstraint:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" DROP INDEX ").Append(w.Ident(o.Name))
	case operation.DropForeignKey:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" DROP FOREIGN KEY ").Append(w.Ident(o.Name))
	case operation.DropIndex:
		w.Append("DROP INDEX ").Append(w.Ident(o.Name)).Append(" ON ").Append(w.Ident(o.Table))
	case operation.RenameIndex:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).
			Append(" RENAME INDEX ").Append(w.Ident(o.Name)).
			Append(" TO ").Append(w.Ident(o.NewName))
	default:
		return false, nil
	}
	w.EndStatement()
	return true, nil
}

type History struct{ history.Unconditional }

func (History) ExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}
func (History) MigrationIDType() string    { return "varchar(150)" }
func (History) ProductVersionType() string { return "varchar(32)" }

type Server struct{}

func (Server) ExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?"
}
func (Server) CreateStatement(name string) string {
	return "CREATE DATABASE " + Dialect{}.QuoteIdentifier(name)
}
