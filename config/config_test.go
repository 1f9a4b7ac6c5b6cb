package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/staffing-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr())
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Ledger.AllowInvoiceDowngrade)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A config file and an environment override for one of its keys
	// WHEN: Loading
	// THEN: The environment wins; untouched file keys survive

	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9000
  read_timeout: 3s
database:
  path: /tmp/file.db
ledger:
  allow_invoice_downgrade: true
`), 0o600))
	t.Setenv("LEDGER_HTTP_PORT", "9100")
	t.Setenv("LEDGER_LOG_FORMAT", "console")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/tmp/file.db", cfg.Database.Path)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Ledger.AllowInvoiceDowngrade)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := config.Load("does-not-exist.yaml")
	assert.Error(t, err)

	t.Setenv("LEDGER_LOG_FORMAT", "xml")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "log.format")
}
