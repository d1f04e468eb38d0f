package sqlite

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/creator"
	"github.com/mirajehossain/relmigrate/internal/history"
	"github.com/mirajehossain/relmigrate/internal/model"
	"github.com/mirajehossain/relmigrate/internal/operation"
	"github.com/mirajehossain/relmigrate/internal/sqlgen"
)

func TestUnsupportedAlterations(t *testing.T) {
	g := sqlgen.New(Dialect{})
	for _, op := range []operation.Operation{
		operation.AlterColumn{Table: "T", Column: model.Column{Name: "c", Type: "INTEGER"}},
		operation.AddPrimaryKey{Table: "T", Name: "PK_T", Columns: []string{"Id"}},
		operation.DropPrimaryKey{Table: "T", Name: "PK_T"},
		operation.AddUniqueConstraint{Table: "T", Name: "AK", Columns: []string{"c"}},
		operation.DropUniqueConstraint{Table: "T", Name: "AK"},
		operation.AddForeignKey{Table: "T", Name: "FK", Columns: []string{"c"}, PrincipalTable: "P", PrincipalColumns: []string{"Id"}},
		operation.DropForeignKey{Table: "T", Name: "FK"},
		operation.RenameIndex{Table: "T", Name: "a", NewName: "b"},
	} {
		_, err := g.Generate([]operation.Operation{op}, nil)
		var nse *sqlgen.NotSupportedError
		require.True(t, errors.As(err, &nse), "%T", op)
		assert.Equal(t, Name, nse.Provider)
	}
}

func TestSupportedOperations(t *testing.T) {
	cmds, err := sqlgen.New(Dialect{}).Generate([]operation.Operation{
		operation.AddColumn{Table: "T", Column: model.Column{Name: "c", Type: "TEXT", Nullable: true}},
		operation.RenameColumn{Table: "T", Name: "c", NewName: "d"},
		operation.DropIndex{Table: "T", Name: "IX_T_d"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, `ALTER TABLE "T" ADD "c" TEXT NULL;`, cmds[0].Text())
	assert.Equal(t, `ALTER TABLE "T" RENAME COLUMN "c" TO "d";`, cmds[1].Text())
	assert.Equal(t, `DROP INDEX "IX_T_d";`, cmds[2].Text())
}

func TestConditionalScriptsAlwaysFail(t *testing.T) {
	l := history.New("", History{}, sqlgen.New(Dialect{}))
	for i := 0; i < 3; i++ {
		_, err := l.BeginIfNotExistsScript("1_init")
		assert.ErrorIs(t, err, history.ErrScriptNotSupported)
		_, err = l.BeginIfExistsScript("1_init")
		assert.ErrorIs(t, err, history.ErrScriptNotSupported)
		_, err = l.EndIfScript()
		assert.ErrorIs(t, err, history.ErrScriptNotSupported)
	}
}

func TestDSN(t *testing.T) {
	p := Provider{}

	dsn, err := p.NormalizeDSN("app.db")
	require.NoError(t, err)
	assert.Equal(t, "app.db?_pragma=foreign_keys(1)", dsn)

	dsn, err = p.NormalizeDSN("file:app.db?_pragma=foreign_keys(0)")
	require.NoError(t, err)
	assert.Equal(t, "file:app.db?_pragma=foreign_keys(0)", dsn)

	for in, want := range map[string]string{
		"app.db":                        "app.db",
		"file:data/app.db?cache=shared": "data/app.db",
		":memory:":                      "",
		"file::memory:":                 "",
		"file:x?mode=memory":            "",
	} {
		got, err := p.DatabaseName(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestCreatorIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	c, err := Provider{}.Creator(path+"?_pragma=foreign_keys(1)", nil, Provider{}.DefaultRetry(), nil)
	require.NoError(t, err)
	assert.Equal(t, creator.File{Path: path}, c)

	ok, err := c.ExistsContext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassifier(t *testing.T) {
	db, err := sqlx.Open(Provider{}.DriverName(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, syntaxErr := db.Exec("SELEC 1")
	require.Error(t, syntaxErr)

	transient := Provider{}.Classifier(nil)
	assert.False(t, transient(syntaxErr))
	assert.False(t, transient(errors.New("busy")))
	assert.True(t, transient(fmt.Errorf("open: %w", driver.ErrBadConn)))

	// SQLITE_ERROR is 1.
	assert.True(t, Provider{}.Classifier([]string{"1"})(fmt.Errorf("exec: %w", syntaxErr)))
}
