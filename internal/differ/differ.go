// Package differ computes the ordered schema operations that transform one
// model snapshot into another.
package differ

import (
	"slices"
	"sort"

	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
)

// Diff returns the operations turning source into target. Either side may be
// nil (an empty database). The output is deterministic: operations are
// grouped so that dependent objects are dropped before and created after the
// objects they depend on, and sorted by name within each group.
//
// Renames are not detected; a renamed table shows up as drop + create.
func Diff(source, target *model.Model) []operation.Operation {
	d := &diff{source: source, target: target, rekeyed: map[string]bool{}, droppedFKs: map[string]bool{}}
	d.run()

	var ops []operation.Operation
	for _, group := range [][]operation.Operation{
		d.dropForeignKeys,
		d.dropIndexes,
		d.dropKeys,
		d.dropColumns,
		d.dropTables,
		d.createTables,
		d.addColumns,
		d.alterColumns,
		d.addKeys,
		d.createIndexes,
		d.addForeignKeys,
	} {
		ops = append(ops, group...)
	}
	return ops
}

type diff struct {
	source, target *model.Model

	dropForeignKeys []operation.Operation
	dropIndexes     []operation.Operation
	dropKeys        []operation.Operation
	dropColumns     []operation.Operation
	dropTables      []operation.Operation
	createTables    []operation.Operation
	addColumns      []operation.Operation
	alterColumns    []operation.Operation
	addKeys         []operation.Operation
	createIndexes   []operation.Operation
	addForeignKeys  []operation.Operation

	// rekeyed holds surviving tables whose primary key or a unique
	// constraint is dropped; foreign keys referencing them must be dropped
	// first and added back afterwards.
	rekeyed map[string]bool
	// droppedFKs holds "table.name" of every foreign key already dropped.
	droppedFKs map[string]bool
}

func (d *diff) run() {
	var dropped []*model.Table
	for _, name := range tableNames(d.source) {
		if d.target.Table(name) == nil {
			dropped = append(dropped, d.source.Table(name))
		}
	}
	for _, t := range dependentsFirst(dropped) {
		d.dropTables = append(d.dropTables, operation.DropTable{Name: t.Name})
	}
	var created []*model.Table
	for _, name := range tableNames(d.target) {
		dst := d.target.Table(name)
		src := d.source.Table(name)
		if src == nil {
			created = append(created, dst)
			continue
		}
		d.diffTable(src, dst)
	}
	d.recreateReferencingForeignKeys()
	sortByName(d.dropForeignKeys)
	sortByName(d.addForeignKeys)
	ordered := dependentsFirst(created)
	for i := len(ordered) - 1; i >= 0; i-- {
		d.createTable(ordered[i])
	}
}

// dependentsFirst orders tables so a table comes before the tables it
// references. Dropped tables are dropped in this order; their foreign keys go
// away with them, and foreign keys from surviving tables are handled by
// diffTable because the target no longer contains them. Reference cycles
// keep name order.
func dependentsFirst(tables []*model.Table) []*model.Table {
	byName := map[string]*model.Table{}
	for _, t := range tables {
		byName[t.Name] = t
	}
	var out []*model.Table
	done := map[string]bool{}
	visiting := map[string]bool{}
	var visit func(t *model.Table)
	visit = func(t *model.Table) {
		if done[t.Name] || visiting[t.Name] {
			return
		}
		visiting[t.Name] = true
		// Every dropped table referencing t goes first.
		for _, other := range tables {
			if other.Name == t.Name {
				continue
			}
			for _, fk := range other.ForeignKeys {
				if fk.PrincipalTable == t.Name {
					visit(byName[other.Name])
					break
				}
			}
		}
		visiting[t.Name] = false
		done[t.Name] = true
		out = append(out, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return out
}

// createTable keeps foreign keys inline so providers without ALTER TABLE ...
// ADD CONSTRAINT can still create them; tables are created principals first.
func (d *diff) createTable(t *model.Table) {
	d.createTables = append(d.createTables, operation.FromTable(*t))
	for _, ix := range sortedIndexes(t) {
		d.createIndexes = append(d.createIndexes, createIndex(t, ix))
	}
}

func (d *diff) diffTable(src, dst *model.Table) {
	changedColumns := map[string]bool{}

	for _, c := range src.Columns {
		if dst.Column(c.Name) == nil {
			changedColumns[c.Name] = true
		}
	}
	for _, c := range sortedColumnNames(src) {
		if dst.Column(c) == nil {
			d.dropColumns = append(d.dropColumns, operation.DropColumn{Table: dst.Name, Name: c})
		}
	}
	for _, c := range dst.Columns {
		old := src.Column(c.Name)
		switch {
		case old == nil:
			d.addColumns = append(d.addColumns, operation.AddColumn{Table: dst.Name, Column: c})
		case !old.Equal(c):
			changedColumns[c.Name] = true
			d.alterColumns = append(d.alterColumns, operation.AlterColumn{Table: dst.Name, Column: c})
		}
	}
	sortByColumn(d.addColumns)
	sortByColumn(d.alterColumns)

	// A key or index touching a dropped or altered column is recreated.
	touches := func(cols []string) bool {
		for _, c := range cols {
			if changedColumns[c] {
				return true
			}
		}
		return false
	}

	// Primary key.
	oldPK, newPK := src.PrimaryKey, dst.PrimaryKey
	pkChanged := (oldPK == nil) != (newPK == nil) ||
		(oldPK != nil && (src.PrimaryKeyName() != dst.PrimaryKeyName() || !slices.Equal(oldPK.Columns, newPK.Columns) || touches(oldPK.Columns)))
	if pkChanged {
		if oldPK != nil {
			d.rekeyed[src.Name] = true
			d.dropKeys = append(d.dropKeys, operation.DropPrimaryKey{Table: src.Name, Name: src.PrimaryKeyName()})
		}
		if newPK != nil {
			d.addKeys = append(d.addKeys, operation.AddPrimaryKey{Table: dst.Name, Name: dst.PrimaryKeyName(), Columns: newPK.Columns})
		}
	}

	// Unique constraints, keyed by name.
	oldUQ := map[string]model.Key{}
	for _, k := range src.UniqueConstraints {
		oldUQ[src.UniqueName(k)] = k
	}
	newUQ := map[string]model.Key{}
	for _, k := range dst.UniqueConstraints {
		newUQ[dst.UniqueName(k)] = k
	}
	for _, name := range sortedKeys(oldUQ) {
		k := oldUQ[name]
		nk, ok := newUQ[name]
		if !ok || !slices.Equal(k.Columns, nk.Columns) || touches(k.Columns) {
			d.rekeyed[src.Name] = true
			d.dropKeys = append(d.dropKeys, operation.DropUniqueConstraint{Table: src.Name, Name: name})
			if ok {
				d.addKeys = append(d.addKeys, operation.AddUniqueConstraint{Table: dst.Name, Name: name, Columns: nk.Columns})
			}
		}
	}
	for _, name := range sortedKeys(newUQ) {
		if _, ok := oldUQ[name]; !ok {
			d.addKeys = append(d.addKeys, operation.AddUniqueConstraint{Table: dst.Name, Name: name, Columns: newUQ[name].Columns})
		}
	}

	// Indexes.
	oldIX := map[string]model.Index{}
	for _, ix := range src.Indexes {
		oldIX[src.IndexName(ix)] = ix
	}
	newIX := map[string]model.Index{}
	for _, ix := range dst.Indexes {
		newIX[dst.IndexName(ix)] = ix
	}
	for _, name := range sortedKeys(oldIX) {
		ix := oldIX[name]
		nix, ok := newIX[name]
		if !ok || ix.Unique != nix.Unique || !slices.Equal(ix.Columns, nix.Columns) || touches(ix.Columns) {
			d.dropIndexes = append(d.dropIndexes, operation.DropIndex{Table: src.Name, Name: name})
			if ok {
				d.createIndexes = append(d.createIndexes, createIndex(dst, nix))
			}
		}
	}
	for _, name := range sortedKeys(newIX) {
		if _, ok := oldIX[name]; !ok {
			d.createIndexes = append(d.createIndexes, createIndex(dst, newIX[name]))
		}
	}

	// Foreign keys.
	oldFK := map[string]model.ForeignKey{}
	for _, fk := range src.ForeignKeys {
		oldFK[src.ForeignKeyName(fk)] = fk
	}
	newFK := map[string]model.ForeignKey{}
	for _, fk := range dst.ForeignKeys {
		newFK[dst.ForeignKeyName(fk)] = fk
	}
	for _, name := range sortedKeys(oldFK) {
		fk := oldFK[name]
		nfk, ok := newFK[name]
		if !ok || !sameForeignKey(fk, nfk) || touches(fk.Columns) {
			d.dropForeignKey(src.Name, name)
			if ok {
				d.addForeignKeys = append(d.addForeignKeys, addForeignKey(dst, nfk))
			}
		}
	}
	for _, name := range sortedKeys(newFK) {
		if _, ok := oldFK[name]; !ok {
			d.addForeignKeys = append(d.addForeignKeys, addForeignKey(dst, newFK[name]))
		}
	}
}

func (d *diff) dropForeignKey(table, name string) {
	d.droppedFKs[table+"."+name] = true
	d.dropForeignKeys = append(d.dropForeignKeys, operation.DropForeignKey{Table: table, Name: name})
}

// recreateReferencingForeignKeys drops and re-adds unchanged foreign keys of
// surviving tables whose principal table has a key recreated.
func (d *diff) recreateReferencingForeignKeys() {
	if len(d.rekeyed) == 0 {
		return
	}
	for _, name := range tableNames(d.target) {
		dst := d.target.Table(name)
		src := d.source.Table(name)
		if src == nil {
			continue
		}
		for _, fk := range dst.ForeignKeys {
			fkName := dst.ForeignKeyName(fk)
			if !d.rekeyed[fk.PrincipalTable] || d.droppedFKs[name+"."+fkName] {
				continue
			}
			if !hasForeignKey(src, fkName) {
				continue
			}
			d.dropForeignKey(name, fkName)
			d.addForeignKeys = append(d.addForeignKeys, addForeignKey(dst, fk))
		}
	}
}

func hasForeignKey(t *model.Table, name string) bool {
	for _, fk := range t.ForeignKeys {
		if t.ForeignKeyName(fk) == name {
			return true
		}
	}
	return false
}

func createIndex(t *model.Table, ix model.Index) operation.CreateIndex {
	return operation.CreateIndex{Table: t.Name, Name: t.IndexName(ix), Columns: ix.Columns, Unique: ix.Unique}
}

func addForeignKey(t *model.Table, fk model.ForeignKey) operation.AddForeignKey {
	return operation.AddForeignKey{
		Table:            t.Name,
		Name:             t.ForeignKeyName(fk),
		Columns:          fk.Columns,
		PrincipalTable:   fk.PrincipalTable,
		PrincipalColumns: fk.PrincipalColumns,
		OnDelete:         fk.OnDelete,
	}
}

func sameForeignKey(a, b model.ForeignKey) bool {
	return a.PrincipalTable == b.PrincipalTable &&
		a.OnDelete == b.OnDelete &&
		slices.Equal(a.Columns, b.Columns) &&
		slices.Equal(a.PrincipalColumns, b.PrincipalColumns)
}

func tableNames(m *model.Model) []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Tables))
	for _, t := range m.Tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func sortedColumnNames(t *model.Table) []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func sortedIndexes(t *model.Table) []model.Index {
	out := append([]model.Index(nil), t.Indexes...)
	sort.SliceStable(out, func(i, j int) bool { return t.IndexName(out[i]) < t.IndexName(out[j]) })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortByColumn orders add/alter column operations by table, then column.
func sortByColumn(ops []operation.Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		ti, ci := columnKey(ops[i])
		tj, cj := columnKey(ops[j])
		if ti != tj {
			return ti < tj
		}
		return ci < cj
	})
}

// sortByName orders foreign key operations by table, then constraint name.
func sortByName(ops []operation.Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		ti, ni := constraintKey(ops[i])
		tj, nj := constraintKey(ops[j])
		if ti != tj {
			return ti < tj
		}
		return ni < nj
	})
}

func constraintKey(op operation.Operation) (string, string) {
	switch o := op.(type) {
	case operation.DropForeignKey:
		return o.Table, o.Name
	case operation.AddForeignKey:
		return o.Table, o.Name
	}
	return "", ""
}

func columnKey(op operation.Operation) (string, string) {
	switch o := op.(type) {
	case operation.AddColumn:
		return o.Table, o.Column.Name
	case operation.AlterColumn:
		return o.Table, o.Column.Name
	}
	return "", ""
}
