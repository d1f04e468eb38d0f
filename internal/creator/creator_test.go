package creator

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/retry"
)

func TestFileCreator(t *testing.T) {
	ctx := context.Background()
	f := File{Path: filepath.Join(t.TempDir(), "nested", "app.db")}

	ok, err := f.ExistsContext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.CreateContext(ctx))
	ok, err = f.ExistsContext(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Creating twice keeps the file.
	require.NoError(t, f.CreateContext(ctx))
}

func TestFileCreatorInMemory(t *testing.T) {
	ok, err := File{}.ExistsContext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

type pgLike struct{}

func (pgLike) ExistsQuery() string { return "SELECT COUNT(*) FROM pg_database WHERE datname = $1" }
func (pgLike) CreateStatement(name string) string {
	return `CREATE DATABASE "` + name + `"`
}

var errTooMany = errors.New("too many connections")

func newServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Server{
		Admin:       sqlx.NewDb(db, "sqlmock"),
		Name:        "shop",
		Dialect:     pgLike{},
		Retry:       retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond},
		IsTransient: func(err error) bool { return errors.Is(err, errTooMany) },
	}, mock
}

func TestServerCreateRetriesAndWaits(t *testing.T) {
	s, mock := newServer(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE DATABASE "shop"`)).WillReturnError(errTooMany)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE DATABASE "shop"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pg_database")).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pg_database")).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	require.NoError(t, s.CreateContext(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServerCreatePermanentError(t *testing.T) {
	s, mock := newServer(t)
	denied := errors.New("permission denied")

	mock.ExpectExec("CREATE DATABASE").WillReturnError(denied)

	err := s.CreateContext(context.Background())
	assert.ErrorIs(t, err, denied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServerExists(t *testing.T) {
	s, mock := newServer(t)
	mock.ExpectQuery("pg_database").WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	ok, err := s.ExistsContext(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
