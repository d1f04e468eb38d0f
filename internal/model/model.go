// Package model describes a relational model snapshot: the full set of
// tables, columns, keys, indexes and foreign keys a database should have
// after a migration has been applied.
package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidModel = errors.New("invalid model")

// Model is a snapshot of the relational schema.
type Model struct {
	Tables []Table `yaml:"tables"`
}

type Table struct {
	Name              string       `yaml:"name"`
	Columns           []Column     `yaml:"columns"`
	PrimaryKey        *Key         `yaml:"primary_key,omitempty"`
	UniqueConstraints []Key        `yaml:"unique_constraints,omitempty"`
	Indexes           []Index      `yaml:"indexes,omitempty"`
	ForeignKeys       []ForeignKey `yaml:"foreign_keys,omitempty"`
}

// Column types are provider types carried verbatim (e.g. "int", "TEXT").
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

// Key is a primary key or unique constraint.
type Key struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

type Index struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

type ForeignKey struct {
	Name             string   `yaml:"name,omitempty"`
	Columns          []string `yaml:"columns"`
	PrincipalTable   string   `yaml:"principal_table"`
	PrincipalColumns []string `yaml:"principal_columns"`
	OnDelete         string   `yaml:"on_delete,omitempty"`
}

// Table returns the table with the given name, or nil. Safe on a nil model.
func (m *Model) Table(name string) *Table {
	if m == nil {
		return nil
	}
	for i := range m.Tables {
		if m.Tables[i].Name == name {
			return &m.Tables[i]
		}
	}
	return nil
}

// Column returns the named column, or nil. Safe on a nil table.
func (t *Table) Column(name string) *Column {
	if t == nil {
		return nil
	}
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Equal reports whether two columns have the same definition.
func (c Column) Equal(o Column) bool {
	return c.Name == o.Name && c.Type == o.Type && c.Nullable == o.Nullable && c.Default == o.Default
}

// PrimaryKeyName returns the key name, defaulting to PK_<table>.
func (t *Table) PrimaryKeyName() string {
	if t.PrimaryKey == nil {
		return ""
	}
	if t.PrimaryKey.Name != "" {
		return t.PrimaryKey.Name
	}
	return "PK_" + t.Name
}

// UniqueName returns the constraint name, defaulting to AK_<table>_<columns>.
func (t *Table) UniqueName(k Key) string {
	if k.Name != "" {
		return k.Name
	}
	return "AK_" + t.Name + "_" + strings.Join(k.Columns, "_")
}

// IndexName returns the index name, defaulting to IX_<table>_<columns>.
func (t *Table) IndexName(ix Index) string {
	if ix.Name != "" {
		return ix.Name
	}
	return "IX_" + t.Name + "_" + strings.Join(ix.Columns, "_")
}

// ForeignKeyName returns the constraint name, defaulting to
// FK_<table>_<principal>_<columns>.
func (t *Table) ForeignKeyName(fk ForeignKey) string {
	if fk.Name != "" {
		return fk.Name
	}
	return "FK_" + t.Name + "_" + fk.PrincipalTable + "_" + strings.Join(fk.Columns, "_")
}

// Validate checks names are present and unique and that keys reference
// existing columns.
func (m *Model) Validate() error {
	if m == nil {
		return nil
	}
	tables := map[string]bool{}
	for _, t := range m.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: table without a name", ErrInvalidModel)
		}
		if tables[t.Name] {
			return fmt.Errorf("%w: duplicate table %s", ErrInvalidModel, t.Name)
		}
		tables[t.Name] = true

		cols := map[string]bool{}
		for _, c := range t.Columns {
			if c.Name == "" {
				return fmt.Errorf("%w: table %s has a column without a name", ErrInvalidModel, t.Name)
			}
			if c.Type == "" {
				return fmt.Errorf("%w: column %s.%s has no type", ErrInvalidModel, t.Name, c.Name)
			}
			if cols[c.Name] {
				return fmt.Errorf("%w: duplicate column %s.%s", ErrInvalidModel, t.Name, c.Name)
			}
			cols[c.Name] = true
		}

		check := func(what string, names []string) error {
			if len(names) == 0 {
				return fmt.Errorf("%w: %s on %s has no columns", ErrInvalidModel, what, t.Name)
			}
			for _, n := range names {
				if !cols[n] {
					return fmt.Errorf("%w: %s on %s references unknown column %s", ErrInvalidModel, what, t.Name, n)
				}
			}
			return nil
		}
		if t.PrimaryKey != nil {
			if err := check("primary key", t.PrimaryKey.Columns); err != nil {
				return err
			}
		}
		for _, k := range t.UniqueConstraints {
			if err := check("unique constraint", k.Columns); err != nil {
				return err
			}
		}
		for _, ix := range t.Indexes {
			if err := check("index", ix.Columns); err != nil {
				return err
			}
		}
		for _, fk := range t.ForeignKeys {
			if err := check("foreign key", fk.Columns); err != nil {
				return err
			}
			if len(fk.PrincipalColumns) != len(fk.Columns) {
				return fmt.Errorf("%w: foreign key %s has mismatched principal columns", ErrInvalidModel, t.ForeignKeyName(fk))
			}
		}
	}
	for _, t := range m.Tables {
		for _, fk := range t.ForeignKeys {
			if !tables[fk.PrincipalTable] {
				return fmt.Errorf("%w: foreign key %s references unknown table %s", ErrInvalidModel, t.ForeignKeyName(fk), fk.PrincipalTable)
			}
		}
	}
	return nil
}
