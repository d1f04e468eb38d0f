package migrator

import (
	"context"
	"sort"
	"strings"
)

// Status is the state of one migration.
type Status struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
	// Registered is false for history rows without a matching migration.
	Registered bool `json:"registered"`
}

// StatusContext lists registered migrations in id order with their applied
// state, followed by history rows no registered migration accounts for. A
// missing history table means nothing is applied; the database is not
// created.
func (m *Migrator) StatusContext(ctx context.Context) ([]Status, error) {
	if m.offline {
		return nil, ErrOffline
	}
	ok, err := m.cfg.Creator.ExistsContext(ctx)
	if err != nil {
		return nil, err
	}
	recorded := map[string]string{}
	if ok {
		exists, err := m.cfg.Ledger.ExistsContext(ctx, m.cfg.DB)
		if err != nil {
			return nil, err
		}
		if exists {
			rows, err := m.cfg.Ledger.AppliedMigrationsContext(ctx, m.cfg.DB)
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				recorded[strings.ToLower(r.MigrationID)] = r.MigrationID
			}
		}
	}

	out := make([]Status, 0, m.cfg.Registry.Len())
	for _, id := range m.cfg.Registry.IDs() {
		key := strings.ToLower(id)
		_, applied := recorded[key]
		delete(recorded, key)
		out = append(out, Status{ID: id, Applied: applied, Registered: true})
	}
	var unknown []string
	for _, id := range recorded {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		out = append(out, Status{ID: id, Applied: true})
	}
	return out, nil
}

// Pending returns the ids of registered migrations not yet applied.
func Pending(statuses []Status) []string {
	var out []string
	for _, s := range statuses {
		if s.Registered && !s.Applied {
			out = append(out, s.ID)
		}
	}
	return out
}
