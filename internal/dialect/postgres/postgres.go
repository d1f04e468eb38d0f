// Package postgres is the PostgreSQL provider, backed by lib/pq.
package postgres

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/lock"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const Name = "postgres"

// maintenanceDB is connected to while the target database is created.
const maintenanceDB = "postgres"

// Default transient SQLSTATEs. 3D000 (invalid_catalog_name) shows up while
// a freshly created database is not yet accepting connections.
var defaultTransient = []string{
	"57P03", // cannot_connect_now
	"53300", // too_many_connections
	"40001", // serialization_failure
	"40P01", // deadlock_detected
	"08006", // connection_failure
	"08001", // sqlclient_unable_to_establish_sqlconnection
	"3D000",
}

type Provider struct{}

func (Provider) Name() string           { return Name }
func (Provider) DriverName() string     { return "postgres" }
func (Provider) BatchSeparator() string { return "\n" }

func (Provider) SQLDialect() sqlgen.Dialect      { return Dialect{} }
func (Provider) HistoryDialect() history.Dialect { return History{} }

func (Provider) DefaultRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 6, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2}
}

func (Provider) Classifier(codes []string) retry.Classifier {
	if len(codes) == 0 {
		codes = defaultTransient
	}
	set := map[pq.ErrorCode]bool{}
	for _, c := range codes {
		set[pq.ErrorCode(strings.ToUpper(strings.TrimSpace(c)))] = true
	}
	return func(err error) bool {
		if retry.IsBadConn(err) {
			return true
		}
		var pe *pq.Error
		if errors.As(err, &pe) {
			return set[pe.Code]
		}
		return false
	}
}

// NormalizeDSN converts postgres:// URLs to the key=value form.
func (Provider) NormalizeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return pq.ParseURL(dsn)
	}
	return dsn, nil
}

func (p Provider) DatabaseName(dsn string) (string, error) {
	kv, err := p.NormalizeDSN(dsn)
	if err != nil {
		return "", err
	}
	for _, f := range strings.Fields(kv) {
		if k, v, ok := strings.Cut(f, "="); ok && k == "dbname" {
			return strings.Trim(v, "'"), nil
		}
	}
	return "", fmt.Errorf("postgres dsn has no dbname")
}

// AdminDSN points dsn at the maintenance database.
func (p Provider) AdminDSN(dsn string) (string, error) {
	kv, err := p.NormalizeDSN(dsn)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(kv)
	replaced := false
	for i, f := range fields {
		if strings.HasPrefix(f, "dbname=") {
			fields[i] = "dbname=" + maintenanceDB
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, "dbname="+maintenanceDB)
	}
	return strings.Join(fields, " "), nil
}

func (p Provider) Creator(dsn string, admin sqlx.ExtContext, policy retry.Policy, transient retry.Classifier) (creator.Creator, error) {
	name, err := p.DatabaseName(dsn)
	if err != nil {
		return nil, err
	}
	return &creator.Server{Admin: admin, Name: name, Dialect: Server{}, Retry: policy, IsTransient: transient}, nil
}

func (Provider) Locker(db *sqlx.DB, key string) lock.Locker { return lock.NewPostgres(db, key) }

// Dialect renders PostgreSQL DDL; the generic rendering already uses its
// syntax, so only quoting differs.
type Dialect struct{ sqlgen.ANSI }

func (Dialect) Name() string                       { return Name }
func (Dialect) QuoteIdentifier(name string) string { return pq.QuoteIdentifier(name) }
func (Dialect) QuoteLiteral(value string) string   { return pq.QuoteLiteral(value) }

// History guards statements with an anonymous PL/pgSQL block.
type History struct{}

func (History) ExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
}
func (History) MigrationIDType() string    { return "character varying(150)" }
func (History) ProductVersionType() string { return "character varying(32)" }

func (History) BeginIf(exists bool, query string) (string, error) {
	cond := "EXISTS"
	if !exists {
		cond = "NOT EXISTS"
	}
	return "DO $$\nBEGIN\n    IF " + cond + "(" + query + ") THEN", nil
}

func (History) EndIf() (string, error) {
	return "    END IF;\nEND $$;", nil
}

type Server struct{}

func (Server) ExistsQuery() string { return "SELECT COUNT(*) FROM pg_database WHERE datname = $1" }
func (Server) CreateStatement(name string) string {
	return "CREATE DATABASE " + pq.QuoteIdentifier(name)
}
