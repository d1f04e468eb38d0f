package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
)

func customers() model.Table {
	return model.Table{
		Name:       "Customers",
		Columns:    []model.Column{{Name: "Id", Type: "int"}, {Name: "Name", Type: "text"}},
		PrimaryKey: &model.Key{Columns: []string{"Id"}},
	}
}

func orders() model.Table {
	return model.Table{
		Name:        "Orders",
		Columns:     []model.Column{{Name: "Id", Type: "int"}, {Name: "CustomerId", Type: "int"}},
		PrimaryKey:  &model.Key{Columns: []string{"Id"}},
		Indexes:     []model.Index{{Columns: []string{"CustomerId"}}},
		ForeignKeys: []model.ForeignKey{{Columns: []string{"CustomerId"}, PrincipalTable: "Customers", PrincipalColumns: []string{"Id"}}},
	}
}

func TestDiffFromEmptyCreatesPrincipalsFirst(t *testing.T) {
	// Name order would put Aliases before Customers.
	aliases := model.Table{
		Name:        "Aliases",
		Columns:     []model.Column{{Name: "CustomerId", Type: "int"}},
		ForeignKeys: []model.ForeignKey{{Columns: []string{"CustomerId"}, PrincipalTable: "Customers", PrincipalColumns: []string{"Id"}}},
	}
	target := &model.Model{Tables: []model.Table{orders(), aliases, customers()}}

	ops := Diff(nil, target)
	require.Len(t, ops, 4)

	first, ok := ops[0].(operation.CreateTable)
	require.True(t, ok)
	assert.Equal(t, "Customers", first.Name)
	assert.Equal(t, "PK_Customers", first.PrimaryKey.Name)

	names := []string{ops[1].(operation.CreateTable).Name, ops[2].(operation.CreateTable).Name}
	assert.ElementsMatch(t, []string{"Aliases", "Orders"}, names)

	ix, ok := ops[3].(operation.CreateIndex)
	require.True(t, ok)
	assert.Equal(t, "IX_Orders_CustomerId", ix.Name)
}

func TestDiffToEmptyDropsDependentsFirst(t *testing.T) {
	source := &model.Model{Tables: []model.Table{customers(), orders()}}

	ops := Diff(source, nil)
	assert.Equal(t, []operation.Operation{
		operation.DropTable{Name: "Orders"},
		operation.DropTable{Name: "Customers"},
	}, ops)
}

func TestDiffColumns(t *testing.T) {
	src := customers()
	dst := customers()
	dst.Columns = []model.Column{
		{Name: "Id", Type: "int"},
		{Name: "Name", Type: "varchar(200)"},
		{Name: "Email", Type: "text", Nullable: true},
	}
	src.Columns = append(src.Columns, model.Column{Name: "Legacy", Type: "text"})

	ops := Diff(&model.Model{Tables: []model.Table{src}}, &model.Model{Tables: []model.Table{dst}})
	assert.Equal(t, []operation.Operation{
		operation.DropColumn{Table: "Customers", Name: "Legacy"},
		operation.AddColumn{Table: "Customers", Column: model.Column{Name: "Email", Type: "text", Nullable: true}},
		operation.AlterColumn{Table: "Customers", Column: model.Column{Name: "Name", Type: "varchar(200)"}},
	}, ops)
}

func TestDiffRecreatesIndexOnAlteredColumn(t *testing.T) {
	src := orders()
	dst := orders()
	dst.Columns[1].Type = "bigint"

	ops := Diff(&model.Model{Tables: []model.Table{customers(), src}}, &model.Model{Tables: []model.Table{customers(), dst}})

	kinds := make([]string, 0, len(ops))
	for _, op := range ops {
		k, err := operation.Kind(op)
		require.NoError(t, err)
		kinds = append(kinds, k)
	}
	assert.Equal(t, []string{
		"drop_foreign_key",
		"drop_index",
		"alter_column",
		"create_index",
		"add_foreign_key",
	}, kinds)
}

func TestDiffIsSymmetricForKeys(t *testing.T) {
	src := customers()
	dst := customers()
	dst.UniqueConstraints = []model.Key{{Columns: []string{"Name"}}}

	up := Diff(&model.Model{Tables: []model.Table{src}}, &model.Model{Tables: []model.Table{dst}})
	down := Diff(&model.Model{Tables: []model.Table{dst}}, &model.Model{Tables: []model.Table{src}})

	assert.Equal(t, []operation.Operation{
		operation.AddUniqueConstraint{Table: "Customers", Name: "AK_Customers_Name", Columns: []string{"Name"}},
	}, up)
	assert.Equal(t, []operation.Operation{
		operation.DropUniqueConstraint{Table: "Customers", Name: "AK_Customers_Name"},
	}, down)
}

func TestDiffIdenticalModelsIsEmpty(t *testing.T) {
	m := &model.Model{Tables: []model.Table{customers(), orders()}}
	assert.Empty(t, Diff(m, m))
}

func TestDiffRecreatesForeignKeysReferencingRekeyedTable(t *testing.T) {
	principal := func(idType string) model.Table {
		return model.Table{
			Name:       "A",
			Columns:    []model.Column{{Name: "Id", Type: idType}},
			PrimaryKey: &model.Key{Columns: []string{"Id"}},
		}
	}
	dependent := model.Table{
		Name:        "B",
		Columns:     []model.Column{{Name: "Id", Type: "int"}, {Name: "AId", Type: "bigint"}},
		PrimaryKey:  &model.Key{Columns: []string{"Id"}},
		ForeignKeys: []model.ForeignKey{{Columns: []string{"AId"}, PrincipalTable: "A", PrincipalColumns: []string{"Id"}, OnDelete: "cascade"}},
	}

	ops := Diff(
		&model.Model{Tables: []model.Table{principal("int"), dependent}},
		&model.Model{Tables: []model.Table{principal("bigint"), dependent}},
	)
	assert.Equal(t, []operation.Operation{
		operation.DropForeignKey{Table: "B", Name: "FK_B_A_AId"},
		operation.DropPrimaryKey{Table: "A", Name: "PK_A"},
		operation.AlterColumn{Table: "A", Column: model.Column{Name: "Id", Type: "bigint"}},
		operation.AddPrimaryKey{Table: "A", Name: "PK_A", Columns: []string{"Id"}},
		operation.AddForeignKey{
			Table:            "B",
			Name:             "FK_B_A_AId",
			Columns:          []string{"AId"},
			PrincipalTable:   "A",
			PrincipalColumns: []string{"Id"},
			OnDelete:         "cascade",
		},
	}, ops)
}

func TestDiffRenamedUniqueKeyRecreatesReferencingForeignKeysOnce(t *testing.T) {
	src := customers()
	src.UniqueConstraints = []model.Key{{Name: "AK_Old", Columns: []string{"Name"}}}
	dst := customers()
	dst.UniqueConstraints = []model.Key{{Name: "AK_New", Columns: []string{"Name"}}}
	// Orders changes its own foreign key too; it must not be dropped twice.
	oldOrders := orders()
	newOrders := orders()
	newOrders.ForeignKeys[0].OnDelete = "cascade"

	ops := Diff(
		&model.Model{Tables: []model.Table{src, oldOrders}},
		&model.Model{Tables: []model.Table{dst, newOrders}},
	)
	var drops, adds int
	for _, op := range ops {
		switch op.(type) {
		case operation.DropForeignKey:
			drops++
		case operation.AddForeignKey:
			adds++
		}
	}
	assert.Equal(t, 1, drops)
	assert.Equal(t, 1, adds)
	_, ok := ops[0].(operation.DropForeignKey)
	assert.True(t, ok)
}
