// Package creator makes sure the database a migrator targets exists before
// the first connection to it is opened.
package creator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/relmigrate/internal/retry"
)

var errNotVisible = errors.New("database not visible yet")

type Creator interface {
	ExistsContext(ctx context.Context) (bool, error)
	CreateContext(ctx context.Context) error
}

// File creates file-backed databases such as SQLite. An empty path is an
// in-memory database and always exists.
type File struct {
	Path string
}

func (f File) ExistsContext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if f.Path == "" {
		return true, nil
	}
	_, err := os.Stat(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (f File) CreateContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Path == "" {
		return nil
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("create database file %s: %w", f.Path, err)
	}
	return fh.Close()
}

// ServerDialect is the catalog SQL of a database server.
type ServerDialect interface {
	// ExistsQuery counts databases named by its single bind parameter.
	ExistsQuery() string
	CreateStatement(name string) string
}

// Server creates a database through an administrative connection to the
// server's maintenance database. The caller owns Admin.
type Server struct {
	Admin       sqlx.ExtContext
	Name        string
	Dialect     ServerDialect
	Retry       retry.Policy
	IsTransient retry.Classifier
}

func (s *Server) ExistsContext(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var n int
	if err := sqlx.GetContext(ctx, s.Admin, &n, s.Dialect.ExistsQuery(), s.Name); err != nil {
		return false, fmt.Errorf("check database %s: %w", s.Name, err)
	}
	return n > 0, nil
}

// CreateContext issues CREATE DATABASE and waits until the new database is
// visible in the catalog. Both steps retry transient errors.
func (s *Server) CreateContext(ctx context.Context) error {
	err := retry.Do(ctx, s.Retry, s.IsTransient, func(ctx context.Context) error {
		_, err := s.Admin.ExecContext(ctx, s.Dialect.CreateStatement(s.Name))
		return err
	})
	if err != nil {
		return fmt.Errorf("create database %s: %w", s.Name, err)
	}

	visible := func(err error) bool {
		return errors.Is(err, errNotVisible) || (s.IsTransient != nil && s.IsTransient(err))
	}
	return retry.Do(ctx, s.Retry, visible, func(ctx context.Context) error {
		ok, err := s.ExistsContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", errNotVisible, s.Name)
		}
		return nil
	})
}
