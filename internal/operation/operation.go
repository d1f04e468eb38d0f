// Package operation defines the closed set of schema operations a migration
// is made of. Operation is sealed: only the types in this package implement it.
package operation

import (
	"errors"
	"fmt"

	"github.com/mirajehossain/relmigrate/internal/model"
)

var ErrUnknownOperation = errors.New("unknown schema operation")

// Operation is a single DDL-level change.
type Operation interface {
	operation()
}

type CreateTable struct {
	Name              string             `yaml:"name"`
	Columns           []model.Column     `yaml:"columns"`
	PrimaryKey        *model.Key         `yaml:"primary_key,omitempty"`
	UniqueConstraints []model.Key        `yaml:"unique_constraints,omitempty"`
	ForeignKeys       []model.ForeignKey `yaml:"foreign_keys,omitempty"`
}

type DropTable struct {
	Name string `yaml:"name"`
}

type RenameTable struct {
	Name    string `yaml:"name"`
	NewName string `yaml:"new_name"`
}

type AddColumn struct {
	Table  string       `yaml:"table"`
	Column model.Column `yaml:"column"`
}

type DropColumn struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

// AlterColumn replaces the definition of an existing column.
type AlterColumn struct {
	Table  string       `yaml:"table"`
	Column model.Column `yaml:"column"`
}

type RenameColumn struct {
	Table   string `yaml:"table"`
	Name    string `yaml:"name"`
	NewName string `yaml:"new_name"`
}

type AddPrimaryKey struct {
	Table   string   `yaml:"table"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

type DropPrimaryKey struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type AddUniqueConstraint struct {
	Table   string   `yaml:"table"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

type DropUniqueConstraint struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type AddForeignKey struct {
	Table            string   `yaml:"table"`
	Name             string   `yaml:"name"`
	Columns          []string `yaml:"columns"`
	PrincipalTable   string   `yaml:"principal_table"`
	PrincipalColumns []string `yaml:"principal_columns"`
	OnDelete         string   `yaml:"on_delete,omitempty"`
}

type DropForeignKey struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type CreateIndex struct {
	Table   string   `yaml:"table"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

type DropIndex struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type RenameIndex struct {
	Table   string `yaml:"table"`
	Name    string `yaml:"name"`
	NewName string `yaml:"new_name"`
}

// SQL is a custom statement passed through unchanged.
type SQL struct {
	SQL string `yaml:"sql"`
}

func (CreateTable) operation()          {}
func (DropTable) operation()            {}
func (RenameTable) operation()          {}
func (AddColumn) operation()            {}
func (DropColumn) operation()           {}
func (AlterColumn) operation()          {}
func (RenameColumn) operation()         {}
func (AddPrimaryKey) operation()        {}
func (DropPrimaryKey) operation()       {}
func (AddUniqueConstraint) operation()  {}
func (DropUniqueConstraint) operation() {}
func (AddForeignKey) operation()        {}
func (DropForeignKey) operation()       {}
func (CreateIndex) operation()          {}
func (DropIndex) operation()            {}
func (RenameIndex) operation()          {}
func (SQL) operation()                  {}

// Kind names an operation, e.g. "create_table". It is also the
// discriminator used by the YAML codec.
func Kind(op Operation) (string, error) {
	switch op.(type) {
	case CreateTable:
		return "create_table", nil
	case DropTable:
		return "drop_table", nil
	case RenameTable:
		return "rename_table", nil
	case AddColumn:
		return "add_column", nil
	case DropColumn:
		return "drop_column", nil
	case AlterColumn:
		return "alter_column", nil
	case RenameColumn:
		return "rename_column", nil
	case AddPrimaryKey:
		return "add_primary_key", nil
	case DropPrimaryKey:
		return "drop_primary_key", nil
	case AddUniqueConstraint:
		return "add_unique_constraint", nil
	case DropUniqueConstraint:
		return "drop_unique_constraint", nil
	case AddForeignKey:
		return "add_foreign_key", nil
	case DropForeignKey:
		return "drop_foreign_key", nil
	case CreateIndex:
		return "create_index", nil
	case DropIndex:
		return "drop_index", nil
	case RenameIndex:
		return "rename_index", nil
	case SQL:
		return "sql", nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
}

// FromTable builds the CreateTable operation for a model table. Indexes are
// not part of CREATE TABLE and must be created separately.
func FromTable(t model.Table) CreateTable {
	op := CreateTable{
		Name:    t.Name,
		Columns: append([]model.Column(nil), t.Columns...),
	}
	if t.PrimaryKey != nil {
		op.PrimaryKey = &model.Key{Name: t.PrimaryKeyName(), Columns: append([]string(nil), t.PrimaryKey.Columns...)}
	}
	for _, k := range t.UniqueConstraints {
		op.UniqueConstraints = append(op.UniqueConstraints, model.Key{Name: t.UniqueName(k), Columns: k.Columns})
	}
	for _, fk := range t.ForeignKeys {
		fk.Name = t.ForeignKeyName(fk)
		op.ForeignKeys = append(op.ForeignKeys, fk)
	}
	return op
}
