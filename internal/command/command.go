// Package command holds the executable unit produced by SQL generation: an
// immutable piece of SQL text with its bound parameters.
package command

import (
	"context"
	"database/sql"
)

// Execer is satisfied by *sql.DB, *sql.Conn, *sql.Tx and their sqlx wrappers.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Command is a single SQL statement (or batch) plus its parameters.
// The zero value is an empty command.
type Command struct {
	text   string
	params []any
}

// New builds a command from raw text. The params slice is copied.
func New(text string, params ...any) Command {
	return Command{text: text, params: copyParams(params)}
}

// Text returns the SQL text.
func (c Command) Text() string { return c.text }

// Params returns a copy of the bound parameters.
func (c Command) Params() []any { return copyParams(c.params) }

func (c Command) String() string { return c.text }

// ExecContext runs the command without reading results.
func (c Command) ExecContext(ctx context.Context, ex Execer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx, c.text, c.params...)
	return err
}

func copyParams(params []any) []any {
	if len(params) == 0 {
		return nil
	}
	out := make([]any, len(params))
	copy(out, params)
	return out
}
