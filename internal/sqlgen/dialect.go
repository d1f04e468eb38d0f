package sqlgen

import (
	"strings"

	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
)

// Dialect supplies a provider's quoting rules and lets it replace the
// generic rendering of individual operation kinds.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	QuoteLiteral(value string) string
	// Override renders op itself and returns true, or returns false to fall
	// back to the generic rendering. m is the model the operations run
	// against and may be nil.
	Override(w *Writer, op operation.Operation, m *model.Model) (bool, error)
}

// ANSI is the standard-SQL dialect: double-quoted identifiers, single-quoted
// literals and no overrides. Provider dialects embed it.
type ANSI struct{}

func (ANSI) Name() string { return "ansi" }

func (ANSI) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (ANSI) QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (ANSI) Override(*Writer, operation.Operation, *model.Model) (bool, error) {
	return false, nil
}
