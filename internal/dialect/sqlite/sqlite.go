// Package sqlite is the SQLite provider, backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const Name = "sqlite"

type Provider struct{}

func (Provider) Name() string           { return Name }
func (Provider) DriverName() string     { return "sqlite" }
func (Provider) BatchSeparator() string { return "" }

func (Provider) SQLDialect() sqlgen.Dialect      { return Dialect{} }
func (Provider) HistoryDialect() history.Dialect { return History{} }

func (Provider) DefaultRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
}

// Classifier treats SQLITE_BUSY and SQLITE_LOCKED as transient unless codes
// names other primary result codes.
func (Provider) Classifier(codes []string) retry.Classifier {
	set := map[int]bool{sqlite3.SQLITE_BUSY: true, sqlite3.SQLITE_LOCKED: true}
	if len(codes) > 0 {
		set = map[int]bool{}
		for _, c := range codes {
			if n, err := strconv.Atoi(strings.TrimSpace(c)); err == nil {
				set[n] = true
			}
		}
	}
	return func(err error) bool {
		if retry.IsBadConn(err) {
			return true
		}
		var se *msqlite.Error
		if errors.As(err, &se) {
			return set[se.Code()&0xff]
		}
		return false
	}
}

// NormalizeDSN turns on foreign key enforcement, which SQLite leaves off per
// connection.
func (Provider) NormalizeDSN(dsn string) (string, error) {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)", nil
}

// DatabaseName returns the database file path, or "" for in-memory databases.
func (Provider) DatabaseName(dsn string) (string, error) {
	return filePath(dsn)
}

func (Provider) Creator(dsn string, _ sqlx.ExtContext, _ retry.Policy, _ retry.Classifier) (creator.Creator, error) {
	path, err := filePath(dsn)
	if err != nil {
		return nil, err
	}
	return creator.File{Path: path}, nil
}

// AdminDSN is empty: file databases need no server connection to create.
func (Provider) AdminDSN(string) (string, error) { return "", nil }

func (Provider) Locker(_ *sqlx.DB, key string) lock.Locker { return lock.NewMutex(key) }

func filePath(dsn string) (string, error) {
	path, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if query != "" {
		v, err := url.ParseQuery(query)
		if err != nil {
			return "", err
		}
		if v.Get("mode") == "memory" {
			return "", nil
		}
	}
	if path == ":memory:" {
		return "", nil
	}
	return path, nil
}

// Dialect renders SQLite DDL. SQLite's ALTER TABLE only renames tables and
// columns and adds or drops columns; constraint changes need a table
// rebuild, which is not generated.
type Dialect struct{ sqlgen.ANSI }

func (Dialect) Name() string { return Name }

func (d Dialect) Override(_ *sqlgen.Writer, op operation.Operation, _ *model.Model) (bool, error) {
	switch op.(type) {
	case operation.AlterColumn,
		operation.AddPrimaryKey, operation.DropPrimaryKey,
		operation.AddUniqueConstraint, operation.DropUniqueConstraint,
		operation.AddForeignKey, operation.DropForeignKey:
		return false, sqlgen.NotSupported(Name, op, "requires a table rebuild")
	case operation.RenameIndex:
		return false, sqlgen.NotSupported(Name, op, "drop and recreate the index")
	}
	return false, nil
}

type History struct{ history.Unconditional }

func (History) ExistsQuery() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}
func (History) MigrationIDType() string    { return "TEXT" }
func (History) ProductVersionType() string { return "TEXT" }
