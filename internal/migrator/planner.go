package migrator

import (
	"strings"

	"github.com/mirajehossain/relmigrate/internal/history"
)

// Step is one migration in a plan. Previous is the migration whose target
// model a revert runs against; nil means the empty database. RecordedID is
// the id as stored in the history table, which may differ in case from
// Migration.ID; it is empty for applies.
type Step struct {
	Migration  *Migration
	Previous   *Migration
	RecordedID string
}

// Plan lists reverts (descending) and applies (ascending). Reverts run
// first.
type Plan struct {
	Revert []Step
	Apply  []Step
}

func (p *Plan) Empty() bool { return len(p.Revert) == 0 && len(p.Apply) == 0 }

// Plan decides which migrations to revert and apply to reach target, given
// the rows currently in the history table. An empty target means the latest
// migration; InitialDatabase reverts everything.
//
// Ledger rows are matched to registered ids ignoring case. Rows for
// migrations that are not registered are ignored.
func (r *Registry) Plan(applied []history.Row, target string) (*Plan, error) {
	recorded := make(map[string]string, len(applied))
	for _, row := range applied {
		recorded[strings.ToLower(row.MigrationID)] = row.MigrationID
	}
	var done, pending []string
	for _, id := range r.ids {
		if _, ok := recorded[strings.ToLower(id)]; ok {
			done = append(done, id)
		} else {
			pending = append(pending, id)
		}
	}

	var revertAbove, applyUpTo string
	switch target {
	case "":
		// Apply everything pending.
	case InitialDatabase:
		revertAbove = InitialDatabase
	default:
		id, err := r.ResolveID(target)
		if err != nil {
			return nil, err
		}
		revertAbove, applyUpTo = id, id
	}

	plan := &Plan{}
	if revertAbove != "" {
		for i := len(done) - 1; i >= 0; i-- {
			if done[i] <= revertAbove {
				break
			}
			step := Step{RecordedID: recorded[strings.ToLower(done[i])]}
			m, err := r.Create(done[i])
			if err != nil {
				return nil, err
			}
			step.Migration = m
			if i > 0 {
				if step.Previous, err = r.Create(done[i-1]); err != nil {
					return nil, err
				}
			}
			plan.Revert = append(plan.Revert, step)
		}
	}
	if target != InitialDatabase {
		for _, id := range pending {
			if applyUpTo != "" && id > applyUpTo {
				break
			}
			m, err := r.Create(id)
			if err != nil {
				return nil, err
			}
			plan.Apply = append(plan.Apply, Step{Migration: m})
		}
	}
	return plan, nil
}
