package migrator

import (
	"fmt"
	"strings"

	"github.com/mirajehossain/relmigrate/internal/command"
)

// GenerateScript renders the migrations between from and to as one SQL
// script. An empty from means InitialDatabase and an empty to means the
// latest migration. When from <= to the script applies (from, to]; otherwise
// it reverts (to, from] newest first.
//
// An idempotent script guards every statement with a history table check.
// Providers that cannot express the guard fail with
// history.ErrScriptNotSupported before anything is rendered.
func (m *Migrator) GenerateScript(from, to string, idempotent bool) (string, error) {
	reg := m.cfg.Registry
	ids := reg.IDs()

	var err error
	if from, err = m.scriptBound(from, InitialDatabase); err != nil {
		return "", err
	}
	last := InitialDatabase
	if len(ids) > 0 {
		last = ids[len(ids)-1]
	}
	if to, err = m.scriptBound(to, last); err != nil {
		return "", err
	}

	if idempotent {
		if _, err := m.cfg.Ledger.BeginIfNotExistsScript(""); err != nil {
			return "", fmt.Errorf("idempotent script: %w", err)
		}
		if _, err := m.cfg.Ledger.EndIfScript(); err != nil {
			return "", fmt.Errorf("idempotent script: %w", err)
		}
	}

	m.log.Info("generating script", map[string]any{"from": from, "to": to, "idempotent": idempotent})

	b := command.NewBuilder()
	if from <= to {
		for i, id := range ids {
			if id <= from || id > to {
				continue
			}
			if i == 0 {
				create, err := m.cfg.Ledger.CreateIfNotExistsScript()
				if err != nil {
					return "", err
				}
				m.writeStatement(b, create)
			}

			mig, err := reg.Create(id)
			if err != nil {
				return "", err
			}
			cmds, err := m.GenerateUpSQL(mig)
			if err != nil {
				return "", &MigrationError{ID: id, Direction: Up, Err: err}
			}
			begin := ""
			if idempotent {
				if begin, err = m.cfg.Ledger.BeginIfNotExistsScript(id); err != nil {
					return "", err
				}
			}
			if err := m.writeCommands(b, begin, cmds); err != nil {
				return "", err
			}
		}
		return b.String(), nil
	}

	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if id > from || id <= to {
			continue
		}
		mig, err := reg.Create(id)
		if err != nil {
			return "", err
		}
		var previous *Migration
		if i > 0 {
			if previous, err = reg.Create(ids[i-1]); err != nil {
				return "", err
			}
		}
		cmds, err := m.GenerateDownSQL(mig, previous)
		if err != nil {
			return "", &MigrationError{ID: id, Direction: Down, Err: err}
		}
		begin := ""
		if idempotent {
			if begin, err = m.cfg.Ledger.BeginIfExistsScript(id); err != nil {
				return "", err
			}
		}
		if err := m.writeCommands(b, begin, cmds); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (m *Migrator) scriptBound(bound, fallback string) (string, error) {
	switch bound {
	case "":
		return fallback, nil
	case InitialDatabase:
		return InitialDatabase, nil
	}
	return m.cfg.Registry.ResolveID(bound)
}

// writeCommands writes cmds, each inside its own guard when begin is set.
func (m *Migrator) writeCommands(b *command.Builder, begin string, cmds []command.Command) error {
	for _, c := range cmds {
		if begin == "" {
			m.writeStatement(b, c.Text())
			continue
		}
		end, err := m.cfg.Ledger.EndIfScript()
		if err != nil {
			return err
		}
		b.AppendLines(begin)
		restore := b.Indent()
		b.AppendLines(c.Text())
		restore()
		m.writeStatement(b, end)
	}
	return nil
}

func (m *Migrator) writeStatement(b *command.Builder, text string) {
	b.AppendLines(text)
	if sep := m.cfg.BatchSeparator; sep != "" {
		b.AppendLines(strings.TrimSuffix(sep, "\n"))
	}
}
