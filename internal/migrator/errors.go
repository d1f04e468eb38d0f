package migrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAmbiguousTarget    = errors.New("target migration is ambiguous or unknown")
	ErrMigrationNotFound  = errors.New("migration not found")
	ErrDuplicateMigration = errors.New("duplicate migration id")
	ErrInvalidMigrationID = errors.New("invalid migration id")
	ErrOffline            = errors.New("migrator has no database connection")
)

// TargetError is returned when a target does not resolve to exactly one
// migration. It matches ErrAmbiguousTarget, and ErrMigrationNotFound when
// nothing matched.
type TargetError struct {
	Target  string
	Matches []string
}

func (e *TargetError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no migration matches %q", e.Target)
	}
	return fmt.Sprintf("%q matches more than one migration: %s", e.Target, strings.Join(e.Matches, ", "))
}

func (e *TargetError) Unwrap() []error {
	if len(e.Matches) == 0 {
		return []error{ErrAmbiguousTarget, ErrMigrationNotFound}
	}
	return []error{ErrAmbiguousTarget}
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// MigrationError reports a migration that failed while running. Migrations
// before it stay committed.
type MigrationError struct {
	ID        string
	Direction Direction
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.ID, e.Direction, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
