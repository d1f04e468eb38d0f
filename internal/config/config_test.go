package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/relmigrate/internal/retry"
)

func TestDefaultAndLockTimeout(t *testing.T) {
	c := Default()
	assert.Equal(t, "__MigrationsHistory", c.MigrationsTable)
	assert.Equal(t, 30*time.Second, Default().LockTimeout())
	c.LockTimeoutSec = 5
	assert.Equal(t, 5*time.Second, c.LockTimeout())
}

func TestLoadYAMLAndMergeEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	data := `provider: postgres
dsn: postgres://u:p@localhost/app
dir: ./migs
lock_timeout_sec: 10
migrations_table: t
batch_separator: "GO\n"
retry:
  max_attempts: 9
  initial_delay: 50ms
  transient_codes: ["57P03"]
`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	cfg, err := LoadYAML(p)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Provider)
	assert.Equal(t, "./migs", cfg.Dir)
	assert.Equal(t, "t", cfg.MigrationsTable)
	assert.Equal(t, 10, cfg.LockTimeoutSec)
	assert.Equal(t, "GO\n", cfg.Separator("\n"))
	assert.Equal(t, 9, cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, []string{"57P03"}, cfg.Retry.TransientCodes)

	t.Setenv("DB_PROVIDER", "mysql")
	t.Setenv("DB_ADMIN_DSN", "root@/")
	t.Setenv("MIGRATIONS_DIR", "./x")
	t.Setenv("LOCK_TIMEOUT_SEC", "20")
	t.Setenv("MIGRATIONS_TABLE", "y")
	t.Setenv("PRODUCT_VERSION", "2.0.0")
	cfg = MergeEnv(cfg)
	assert.Equal(t, "mysql", cfg.Provider)
	assert.Equal(t, "root@/", cfg.AdminDSN)
	assert.Equal(t, "./x", cfg.Dir)
	assert.Equal(t, "y", cfg.MigrationsTable)
	assert.Equal(t, 20, cfg.LockTimeoutSec)
	assert.Equal(t, "2.0.0", cfg.ProductVersion)
}

func TestLoadYAMLEmptyPath(t *testing.T) {
	cfg, err := LoadYAML("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, "x", cfg.Separator("x"), "unset separator falls back")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "missing dsn")
	cfg.DSN = "app.db"
	assert.NoError(t, cfg.Validate())
	cfg.Provider = "oracle"
	assert.Error(t, cfg.Validate(), "unknown provider")
}

func TestValidateOffline(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.ValidateOffline())
	cfg.Provider = "oracle"
	assert.Error(t, cfg.ValidateOffline())
	cfg.Provider = "postgres"
	cfg.MigrationsTable = ""
	assert.Error(t, cfg.ValidateOffline())
}

func TestRetryPolicy(t *testing.T) {
	defaults := retry.Policy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
	cfg := Default()
	assert.Equal(t, defaults, cfg.RetryPolicy(defaults))

	cfg.Retry.MaxAttempts = 1
	cfg.Retry.Multiplier = 3
	got := cfg.RetryPolicy(defaults)
	assert.Equal(t, 1, got.MaxAttempts)
	assert.Equal(t, 3.0, got.Multiplier)
	assert.Equal(t, time.Second, got.InitialDelay)
}
