package migrator

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the known migrations ordered by id. Register everything at
// startup; the registry is read-only afterwards.
type Registry struct {
	factories map[string]Factory
	ids       []string
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds a migration. Ids must look like <digits>_<name> and be
// unique ignoring case, because the history table is matched that way.
func (r *Registry) Register(id string, f Factory) error {
	if err := validID(id); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("migration %s: nil factory", id)
	}
	for _, existing := range r.ids {
		if strings.EqualFold(existing, id) {
			return fmt.Errorf("%w: %s", ErrDuplicateMigration, id)
		}
	}
	r.factories[id] = f
	r.ids = append(r.ids, id)
	sort.Strings(r.ids)
	return nil
}

func (r *Registry) MustRegister(id string, f Factory) {
	if err := r.Register(id, f); err != nil {
		panic(err)
	}
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) Len() int { return len(r.ids) }

// Create builds the migration registered under id.
func (r *Registry) Create(id string) (*Migration, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMigrationNotFound, id)
	}
	m := f()
	if m == nil {
		return nil, fmt.Errorf("migration %s: factory returned nil", id)
	}
	if m.ID == "" {
		m.ID = id
	}
	if m.ID != id {
		return nil, fmt.Errorf("migration registered as %s reports id %s", id, m.ID)
	}
	return m, nil
}

// ResolveID maps a full id or a short name to the registered id. Exact ids
// win; names must match exactly one migration. Both compare ignoring case.
func (r *Registry) ResolveID(nameOrID string) (string, error) {
	for _, id := range r.ids {
		if strings.EqualFold(id, nameOrID) {
			return id, nil
		}
	}
	var matches []string
	for _, id := range r.ids {
		if strings.EqualFold(nameOf(id), nameOrID) {
			matches = append(matches, id)
		}
	}
	if len(matches) != 1 {
		return "", &TargetError{Target: nameOrID, Matches: matches}
	}
	return matches[0], nil
}
