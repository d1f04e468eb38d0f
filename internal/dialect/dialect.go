// Package dialect selects a database provider by name. Each provider
// bundles its SQL dialect, history table dialect, database creator, advisory
// lock and retry defaults.
package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/dialect/mysql"
	"github.com/mirajehossain/relmigrate/internal/dialect/postgres"
	"github.com/mirajehossain/relmigrate/internal/dialect/sqlite"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

type Provider interface {
	Name() string
	DriverName() string
	BatchSeparator() string
	SQLDialect() sqlgen.Dialect
	HistoryDialect() history.Dialect
	DefaultRetry() retry.Policy
	// Classifier returns the transient-error test; codes replaces the
	// provider's default error codes when non-empty.
	Classifier(codes []string) retry.Classifier
	NormalizeDSN(dsn string) (string, error)
	DatabaseName(dsn string) (string, error)
	// AdminDSN is the DSN used to create the database, or "" when no
	// server connection is needed.
	AdminDSN(dsn string) (string, error)
	Creator(dsn string, admin sqlx.ExtContext, policy retry.Policy, transient retry.Classifier) (creator.Creator, error)
	Locker(db *sqlx.DB, key string) lock.Locker
}

var providers = map[string]Provider{
	sqlite.Name:   sqlite.Provider{},
	postgres.Name: postgres.Provider{},
	mysql.Name:    mysql.Provider{},
}

var aliases = map[string]string{
	"sqlite3":    sqlite.Name,
	"postgresql": postgres.Name,
	"pg":         postgres.Name,
}

func Lookup(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[key]; ok {
		key = a
	}
	p, ok := providers[key]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

func Names() []string {
	out := make([]string, 0, len(providers))
	for n := range providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
