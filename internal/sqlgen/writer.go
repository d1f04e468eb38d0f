package sqlgen

import (
	"fmt"
	"strings"

	"github.com/mirajehossain/relmigrate/internal/command"
	"github.com/mirajehossain/relmigrate/internal/model"
)

// Writer collects the commands rendered for one Generate call. Dialect
// overrides write through the same helpers as the generic renderer.
type Writer struct {
	dialect Dialect
	b       *command.Builder
	cmds    []command.Command
}

func newWriter(d Dialect) *Writer {
	return &Writer{dialect: d, b: command.NewBuilder()}
}

// Builder exposes the builder of the statement in progress.
func (w *Writer) Builder() *command.Builder { return w.b }

func (w *Writer) Append(s string) *Writer {
	w.b.Append(s)
	return w
}

func (w *Writer) AppendLine(s string) *Writer {
	w.b.AppendLine(s)
	return w
}

// Ident quotes an identifier.
func (w *Writer) Ident(name string) string { return w.dialect.QuoteIdentifier(name) }

// Literal quotes a string literal.
func (w *Writer) Literal(value string) string { return w.dialect.QuoteLiteral(value) }

// Idents quotes and comma-joins a column list.
func (w *Writer) Idents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = w.Ident(n)
	}
	return strings.Join(quoted, ", ")
}

// ColumnDefinition writes `"name" type NULL|NOT NULL [DEFAULT expr]`.
func (w *Writer) ColumnDefinition(c model.Column) error {
	if c.Name == "" {
		return fmt.Errorf("%w: column without a name", ErrInvalidOperation)
	}
	if c.Type == "" {
		return fmt.Errorf("%w: column %s has no type", ErrInvalidOperation, c.Name)
	}
	w.b.Append(w.Ident(c.Name)).Append(" ").Append(c.Type)
	if c.Nullable {
		w.b.Append(" NULL")
	} else {
		w.b.Append(" NOT NULL")
	}
	if c.Default != "" {
		w.b.Append(" DEFAULT ").Append(c.Default)
	}
	return nil
}

// EndStatement terminates the statement in progress with a semicolon and
// turns it into a command.
func (w *Writer) EndStatement() {
	w.b.Append(";")
	w.Flush()
}

// Flush turns the text written so far into a command as-is. Empty text is
// dropped.
func (w *Writer) Flush() {
	if strings.TrimSpace(w.b.String()) != "" {
		w.cmds = append(w.cmds, w.b.Build())
	}
	w.b.Reset()
}

func (w *Writer) commands() []command.Command {
	w.Flush()
	return w.cmds
}
