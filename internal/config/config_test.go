package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/crmsync/internal/apperrors"
	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/reconcile"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WAREHOUSE_PROJECT", "/tmp/wh.db")
	t.Setenv("WAREHOUSE_DATASET", "crm")
	t.Setenv("MASTER_TABLE", "contacts")
	t.Setenv("STAGING_TABLE", "contacts_staging")
	t.Setenv("CRM_ACCESS_TOKEN", "pat-123")
}

func TestLoadFromEnvAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, database.DriverSQLite, cfg.Driver())
	assert.Equal(t, "https://api.hubapi.com", cfg.CRM.BaseURL)
	assert.Equal(t, "contacts", cfg.CRM.Entity)
	assert.Equal(t, 720*time.Hour, cfg.Sync.DefaultLookback)
	assert.Equal(t, 100, cfg.Sync.MaxPropertiesPerRequest)
	assert.Equal(t, 500, cfg.Sync.LoadBatchSize)
	assert.Equal(t, reconcile.StrategyAntiJoin, cfg.Strategy())

	opts := cfg.DatabaseOptions()
	assert.Equal(t, "/tmp/wh.db", opts.DSN)
	assert.Equal(t, "crm", opts.Schema)
}

func TestLoadReportsMissingOptions(t *testing.T) {
	t.Setenv("WAREHOUSE_PROJECT", "/tmp/wh.db")
	t.Setenv("MASTER_TABLE", "")
	t.Setenv("WAREHOUSE_DATASET", "")
	t.Setenv("STAGING_TABLE", "")
	t.Setenv("CRM_ACCESS_TOKEN", "")

	_, err := Load("")
	require.ErrorIs(t, err, apperrors.ErrConfig)
	assert.Contains(t, err.Error(), "WAREHOUSE_DATASET")
	assert.Contains(t, err.Error(), "MASTER_TABLE")
	assert.Contains(t, err.Error(), "CRM_ACCESS_TOKEN")
	assert.NotContains(t, err.Error(), "WAREHOUSE_PROJECT")
}

func TestLoadRejectsInvalidEnums(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WAREHOUSE_DRIVER", "oracle")

	_, err := Load("")
	require.ErrorIs(t, err, apperrors.ErrConfig)

	t.Setenv("WAREHOUSE_DRIVER", "duckdb")
	t.Setenv("CLEANUP_STRATEGY", "everything")
	_, err = Load("")
	require.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestLoadRejectsSameTables(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAGING_TABLE", "contacts")

	_, err := Load("")
	require.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOAD_BATCH_SIZE", "250")

	path := filepath.Join(t.TempDir(), "crmsync.yaml")
	yaml := `
warehouse:
  driver: postgres
  master_table: yaml_contacts
crm:
  entity: companies
sync:
  load_batch_size: 50
  cleanup_strategy: archived
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, database.DriverPostgres, cfg.Driver())
	assert.Equal(t, "companies", cfg.CRM.Entity)
	assert.Equal(t, 250, cfg.Sync.LoadBatchSize, "environment overrides the file")
	assert.Equal(t, "contacts", cfg.Warehouse.MasterTable, "environment overrides the file")
	assert.Equal(t, reconcile.StrategyArchived, cfg.Strategy())
}
