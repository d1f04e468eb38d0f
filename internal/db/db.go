// Package db opens connection pools for the supported providers.
package db

import (
	"time"

	"github.com/jmoiron/sqlx"

	// Drivers for every provider in internal/dialect.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open returns a pool for driver without connecting. dsn must already be
// normalized by the provider.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
