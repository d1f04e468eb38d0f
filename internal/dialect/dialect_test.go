package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for in, want := range map[string]string{
		"sqlite":     "sqlite",
		"SQLite3":    "sqlite",
		"postgresql": "postgres",
		" mysql ":    "mysql",
	} {
		p, err := Lookup(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, p.Name())
	}

	_, err := Lookup("oracle")
	assert.ErrorContains(t, err, "mysql, postgres, sqlite")
}

func TestProvidersAreComplete(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.SQLDialect().Name())
		assert.NotEmpty(t, p.DriverName())
		assert.GreaterOrEqual(t, p.DefaultRetry().MaxAttempts, 1)
		assert.NotNil(t, p.Classifier(nil))
		assert.NotEmpty(t, p.HistoryDialect().ExistsQuery())
	}
}
