// Package sqlgen renders schema operations into executable SQL commands.
// Rendering is generic ANSI SQL; provider dialects override the kinds they
// spell differently or cannot express.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/mirajehossain/relmigrate/internal/command"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
)

type Generator struct {
	dialect Dialect
}

func New(d Dialect) *Generator {
	if d == nil {
		d = ANSI{}
	}
	return &Generator{dialect: d}
}

func (g *Generator) Dialect() Dialect { return g.dialect }

// Generate renders ops in order, one command per statement. m is the model
// the operations are applied against; it may be nil.
func (g *Generator) Generate(ops []operation.Operation, m *model.Model) ([]command.Command, error) {
	w := newWriter(g.dialect)
	for i, op := range ops {
		if err := g.generate(w, op, m); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return w.commands(), nil
}

func (g *Generator) generate(w *Writer, op operation.Operation, m *model.Model) error {
	handled, err := g.dialect.Override(w, op, m)
	if err != nil || handled {
		return err
	}

	switch o := op.(type) {
	case operation.CreateTable:
		return createTable(w, o)
	case operation.DropTable:
		w.Append("DROP TABLE ").Append(w.Ident(o.Name))
	case operation.RenameTable:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Name)).Append(" RENAME TO ").Append(w.Ident(o.NewName))
	case operation.AddColumn:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" ADD ")
		if err := w.ColumnDefinition(o.Column); err != nil {
			return err
		}
	case operation.DropColumn:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" DROP COLUMN ").Append(w.Ident(o.Name))
	case operation.AlterColumn:
		return alterColumn(w, o)
	case operation.RenameColumn:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).
			Append(" RENAME COLUMN ").Append(w.Ident(o.Name)).
			Append(" TO ").Append(w.Ident(o.NewName))
	case operation.AddPrimaryKey:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).
			Append(" ADD CONSTRAINT ").Append(w.Ident(o.Name)).
			Append(" PRIMARY KEY (").Append(w.Idents(o.Columns)).Append(")")
	case operation.DropPrimaryKey:
		dropConstraint(w, o.Table, o.Name)
	case operation.AddUniqueConstraint:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).
			Append(" ADD CONSTRAINT ").Append(w.Ident(o.Name)).
			Append(" UNIQUE (").Append(w.Idents(o.Columns)).Append(")")
	case operation.DropUniqueConstraint:
		dropConstraint(w, o.Table, o.Name)
	case operation.AddForeignKey:
		w.Append("ALTER TABLE ").Append(w.Ident(o.Table)).Append(" ADD ")
		foreignKey(w, model.ForeignKey{
			Name:             o.Name,
			Columns:          o.Columns,
			PrincipalTable:   o.PrincipalTable,
			PrincipalColumns: o.PrincipalColumns,
			OnDelete:         o.OnDelete,
		})
	case operation.DropForeignKey:
		dropConstraint(w, o.Table, o.Name)
	case operation.CreateIndex:
		w.Append("CREATE ")
		if o.Unique {
			w.Append("UNIQUE ")
		}
		w.Append("INDEX ").Append(w.Ident(o.Name)).
			Append(" ON ").Append(w.Ident(o.Table)).
			Append(" (").Append(w.Idents(o.Columns)).Append(")")
	case operation.DropIndex:
		w.Append("DROP INDEX ").Append(w.Ident(o.Name))
	case operation.RenameIndex:
		w.Append("ALTER INDEX ").Append(w.Ident(o.Name)).Append(" RENAME TO ").Append(w.Ident(o.NewName))
	case operation.SQL:
		// Custom SQL is passed through verbatim.
		w.Append(strings.TrimRight(o.SQL, "\r\n"))
		w.Flush()
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
	w.EndStatement()
	return nil
}

func createTable(w *Writer, o operation.CreateTable) error {
	if len(o.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidOperation, o.Name)
	}
	w.AppendLine("CREATE TABLE " + w.Ident(o.Name) + " (")
	restore := w.Builder().Indent()

	var parts []func() error
	for _, c := range o.Columns {
		c := c
		parts = append(parts, func() error { return w.ColumnDefinition(c) })
	}
	if o.PrimaryKey != nil {
		pk := o.PrimaryKey
		parts = append(parts, func() error {
			constraintName(w, pk.Name)
			w.Append("PRIMARY KEY (").Append(w.Idents(pk.Columns)).Append(")")
			return nil
		})
	}
	for _, k := range o.UniqueConstraints {
		k := k
		parts = append(parts, func() error {
			constraintName(w, k.Name)
			w.Append("UNIQUE (").Append(w.Idents(k.Columns)).Append(")")
			return nil
		})
	}
	for _, fk := range o.ForeignKeys {
		fk := fk
		parts = append(parts, func() error {
			foreignKey(w, fk)
			return nil
		})
	}
	for i, part := range parts {
		if err := part(); err != nil {
			return fmt.Errorf("table %s: %w", o.Name, err)
		}
		if i < len(parts)-1 {
			w.AppendLine(",")
		} else {
			w.AppendLine("")
		}
	}
	restore()
	w.Append(")")
	w.EndStatement()
	return nil
}

func alterColumn(w *Writer, o operation.AlterColumn) error {
	c := o.Column
	if c.Type == "" {
		return fmt.Errorf("%w: column %s has no type", ErrInvalidOperation, c.Name)
	}
	col := w.Ident(c.Name)
	w.AppendLine("ALTER TABLE " + w.Ident(o.Table))
	restore := w.Builder().Indent()
	w.AppendLine("ALTER COLUMN " + col + " TYPE " + c.Type + ",")
	if c.Nullable {
		w.AppendLine("ALTER COLUMN " + col + " DROP NOT NULL,")
	} else {
		w.AppendLine("ALTER COLUMN " + col + " SET NOT NULL,")
	}
	if c.Default != "" {
		w.Append("ALTER COLUMN " + col + " SET DEFAULT " + c.Default)
	} else {
		w.Append("ALTER COLUMN " + col + " DROP DEFAULT")
	}
	restore()
	w.EndStatement()
	return nil
}

func dropConstraint(w *Writer, table, name string) {
	w.Append("ALTER TABLE ").Append(w.Ident(table)).Append(" DROP CONSTRAINT ").Append(w.Ident(name))
}

func constraintName(w *Writer, name string) {
	if name != "" {
		w.Append("CONSTRAINT ").Append(w.Ident(name)).Append(" ")
	}
}

func foreignKey(w *Writer, fk model.ForeignKey) {
	constraintName(w, fk.Name)
	w.Append("FOREIGN KEY (").Append(w.Idents(fk.Columns)).Append(") REFERENCES ").
		Append(w.Ident(fk.PrincipalTable)).
		Append(" (").Append(w.Idents(fk.PrincipalColumns)).Append(")")
	if fk.OnDelete != "" {
		w.Append(" ON DELETE ").Append(strings.ToUpper(fk.OnDelete))
	}
}
