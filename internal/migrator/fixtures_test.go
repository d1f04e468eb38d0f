package migrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/dialect/postgres"
	"github.com/mirajehossain/relmigrate/internal/dialect/sqlite"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
	"github.com/mirajehossain/relmigrate/internal/retry"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

const (
	idCreateT1 = "20240101000000_CreateT1"
	idRenameT1 = "20240102000000_RenameT1"
	idAddNote  = "20240103000000_AddNote"
)

var (
	modelT1 = &model.Model{Tables: []model.Table{{
		Name:       "T1",
		Columns:    []model.Column{{Name: "Id", Type: "INTEGER"}},
		PrimaryKey: &model.Key{Columns: []string{"Id"}},
	}}}
	modelT2 = &model.Model{Tables: []model.Table{{
		Name:       "T2",
		Columns:    []model.Column{{Name: "Id", Type: "INTEGER"}},
		PrimaryKey: &model.Key{Columns: []string{"Id"}},
	}}}
	modelT2Note = &model.Model{Tables: []model.Table{{
		Name:       "T2",
		Columns:    []model.Column{{Name: "Id", Type: "INTEGER"}, {Name: "Note", Type: "TEXT", Nullable: true}},
		PrimaryKey: &model.Key{Columns: []string{"Id"}},
	}}}
)

func createT1() *Migration {
	return &Migration{
		Up: []operation.Operation{operation.CreateTable{
			Name:       "T1",
			Columns:    []model.Column{{Name: "Id", Type: "INTEGER"}},
			PrimaryKey: &model.Key{Name: "PK_T1", Columns: []string{"Id"}},
		}},
		Down:        []operation.Operation{operation.DropTable{Name: "T1"}},
		TargetModel: modelT1,
	}
}

func renameT1() *Migration {
	return &Migration{
		Up:          []operation.Operation{operation.RenameTable{Name: "T1", NewName: "T2"}},
		Down:        []operation.Operation{operation.RenameTable{Name: "T2", NewName: "T1"}},
		TargetModel: modelT2,
	}
}

func addNote() *Migration {
	return &Migration{
		Up:          []operation.Operation{operation.AddColumn{Table: "T2", Column: model.Column{Name: "Note", Type: "TEXT", Nullable: true}}},
		Down:        []operation.Operation{operation.DropColumn{Table: "T2", Name: "Note"}},
		TargetModel: modelT2Note,
	}
}

func testRegistry(t *testing.T, withNote bool) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(idRenameT1, renameT1))
	require.NoError(t, reg.Register(idCreateT1, createT1))
	if withNote {
		require.NoError(t, reg.Register(idAddNote, addNote))
	}
	return reg
}

// sqliteMigrator wires a migrator to a database file that does not exist yet.
func sqliteMigrator(t *testing.T, reg *Registry) (*Migrator, *sqlx.DB, string) {
	t.Helper()
	p := sqlite.Provider{}
	path := filepath.Join(t.TempDir(), "app.db")
	dsn, err := p.NormalizeDSN(path)
	require.NoError(t, err)

	db, err := sqlx.Open(p.DriverName(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cr, err := p.Creator(dsn, nil, p.DefaultRetry(), nil)
	require.NoError(t, err)
	gen := sqlgen.New(p.SQLDialect())
	m, err := New(Config{
		DB:             db,
		Registry:       reg,
		Ledger:         history.New("", p.HistoryDialect(), gen),
		Generator:      gen,
		Creator:        cr,
		BatchSeparator: p.BatchSeparator(),
		Retry:          p.DefaultRetry(),
		IsTransient:    p.Classifier(nil),
	})
	require.NoError(t, err)
	return m, db, path
}

type fakeCreator struct {
	exists  bool
	checked int
	created int
}

func (f *fakeCreator) ExistsContext(ctx context.Context) (bool, error) {
	f.checked++
	return f.exists, ctx.Err()
}

func (f *fakeCreator) CreateContext(context.Context) error {
	f.created++
	f.exists = true
	return nil
}

// mockMigrator uses the PostgreSQL dialect over sqlmock.
func mockMigrator(t *testing.T, reg *Registry, transient retry.Classifier) (*Migrator, sqlmock.Sqlmock, *fakeCreator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := postgres.Provider{}
	gen := sqlgen.New(p.SQLDialect())
	cr := &fakeCreator{exists: true}
	m, err := New(Config{
		DB:             sqlx.NewDb(db, "sqlmock"),
		Registry:       reg,
		Ledger:         history.New("", p.HistoryDialect(), gen),
		Generator:      gen,
		Creator:        cr,
		BatchSeparator: p.BatchSeparator(),
		ProductVersion: "9.9.9",
		Retry:          retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond},
		IsTransient:    transient,
	})
	require.NoError(t, err)
	return m, mock, cr
}

func ledgerIDs(t *testing.T, db *sqlx.DB) []string {
	t.Helper()
	var ids []string
	require.NoError(t, db.Select(&ids, `SELECT "MigrationId" FROM "__MigrationsHistory" ORDER BY "MigrationId"`))
	return ids
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name))
	return n > 0
}
