package migrator

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mirajehossain/relmigrate/internal/differ"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
)

// InitialDatabase is the target meaning "before the first migration".
const InitialDatabase = "0"

const DefaultProductVersion = "1.0.0"

var idRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_\-]+)$`)

// Migration is one schema change. Up and Down are inverse operation lists;
// TargetModel is the model after Up has run.
type Migration struct {
	ID          string
	Up          []operation.Operation
	Down        []operation.Operation
	TargetModel *model.Model
}

// Factory builds a migration on demand.
type Factory func() *Migration

// Name is the part of the id after the timestamp.
func (m *Migration) Name() string { return nameOf(m.ID) }

func (m *Migration) targetModel() *model.Model {
	if m == nil {
		return nil
	}
	return m.TargetModel
}

func nameOf(id string) string {
	if _, name, ok := strings.Cut(id, "_"); ok {
		return name
	}
	return id
}

func validID(id string) error {
	if !idRe.MatchString(id) {
		return fmt.Errorf("%w: %q (want <digits>_<name>)", ErrInvalidMigrationID, id)
	}
	return nil
}

// NewID returns a sortable id for a new migration: a UTC timestamp prefix
// followed by the sanitized name.
func NewID(name string, now time.Time) (string, error) {
	clean := sanitize(name)
	if clean == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidMigrationID)
	}
	return now.UTC().Format("20060102150405") + "_" + clean, nil
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Scaffold builds a migration moving the schema from previous to target.
// Either model may be nil.
func Scaffold(id string, previous, target *model.Model) (*Migration, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return &Migration{
		ID:          id,
		Up:          differ.Diff(previous, target),
		Down:        differ.Diff(target, previous),
		TargetModel: target,
	}, nil
}

// Document is the YAML form of a migration.
type Document struct {
	ID    string         `yaml:"id"`
	Up    operation.List `yaml:"up"`
	Down  operation.List `yaml:"down"`
	Model *model.Model   `yaml:"model,omitempty"`
}

func (m *Migration) Document() Document {
	return Document{ID: m.ID, Up: m.Up, Down: m.Down, Model: m.TargetModel}
}

// Factory returns a factory producing the migration described by d.
func (d Document) Factory() Factory {
	return func() *Migration {
		return &Migration{
			ID:          d.ID,
			Up:          append([]operation.Operation(nil), d.Up...),
			Down:        append([]operation.Operation(nil), d.Down...),
			TargetModel: d.Model,
		}
	}
}
