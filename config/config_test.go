package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadFrom("")
		require.NoError(t, err)

		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.Equal(t, ":8080", cfg.HTTP.Addr)
		assert.Equal(t, "prepaid", cfg.Provider.Command)
		assert.Equal(t, "pricelist", cfg.Provider.SignCommand)
		assert.Equal(t, "buyer_sku_code", cfg.Provider.SKUField)
		assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, "sqlite", cfg.Storage.Driver)
		assert.Equal(t, 500, cfg.Storage.MaxBatchSize)
		assert.Equal(t, 100, cfg.Deletion.PageSize)
		assert.Equal(t, "finance", cfg.Deletion.UserRoot)
		assert.Equal(t,
			[]string{"transactions", "goals", "debts", "categories"},
			cfg.Deletion.UserCollections)
		assert.Empty(t, cfg.Broker.SeedBrokers)
		assert.Empty(t, cfg.Webhook.Secret)
	})

	t.Run("File", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
http:
  addr: ":9090"
  handler_timeout: 90s
provider:
  username: shop
  api_key: k3y
storage:
  driver: memory
deletion:
  page_size: 50
  page_pause: 10ms
  user_collections: [transactions, budgets]
broker:
  seed_brokers: ["a:9092", "b:9092"]
  schema_registry_urls: ["http://sr:8081"]
auth:
  tokens:
    - token: admin-token
      admin: true
    - token: user-token
      user_id: u1
`)
		cfg, err := LoadFrom(path)
		require.NoError(t, err)

		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, ":9090", cfg.HTTP.Addr)
		assert.Equal(t, 90*time.Second, cfg.HTTP.HandlerTimeout)
		assert.Equal(t, "shop", cfg.Provider.Username)
		assert.Equal(t, "k3y", cfg.Provider.APIKey)
		assert.Equal(t, "memory", cfg.Storage.Driver)
		assert.Equal(t, 50, cfg.Deletion.PageSize)
		assert.Equal(t, 10*time.Millisecond, cfg.Deletion.PagePause)
		assert.Equal(t, []string{"transactions", "budgets"}, cfg.Deletion.UserCollections)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.SeedBrokers)
		assert.Equal(t, []Token{
			{Token: "admin-token", Admin: true},
			{Token: "user-token", UserID: "u1"},
		}, cfg.Auth.Tokens)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		path := writeConfig(t, "provider:\n  api_key: from-file\n")
		t.Setenv("PRICESYNC_PROVIDER_API_KEY", "from-env")
		t.Setenv("PRICESYNC_WEBHOOK_SECRET", "s3cr3t")
		t.Setenv("PRICESYNC_DELETION_PAGE_SIZE", "25")
		t.Setenv("PRICESYNC_BROKER_SEED_BROKERS", "a:9092,b:9092")
		t.Setenv("PRICESYNC_BROKER_SCHEMA_REGISTRY_URLS", "http://sr:8081")

		cfg, err := LoadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Provider.APIKey)
		assert.Equal(t, "s3cr3t", cfg.Webhook.Secret)
		assert.Equal(t, 25, cfg.Deletion.PageSize)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.SeedBrokers)
	})

	t.Run("UnknownKey", func(t *testing.T) {
		_, err := LoadFrom(writeConfig(t, "provider:\n  api_kee: typo\n"))
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid, err := LoadFrom("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "UnknownDriver",
			mutate: func(c *Config) { c.Storage.Driver = "mongo" },
			want:   "storage.driver",
		},
		{
			name:   "PostgresWithoutDSN",
			mutate: func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" },
			want:   "storage.dsn",
		},
		{
			name:   "FirestoreWithoutProject",
			mutate: func(c *Config) { c.Storage.Driver = "firestore" },
			want:   "storage.firestore_project",
		},
		{
			name:   "PageSizeAboveBatchCap",
			mutate: func(c *Config) { c.Deletion.PageSize = 501 },
			want:   "deletion.page_size",
		},
		{
			name:   "ZeroPageSize",
			mutate: func(c *Config) { c.Deletion.PageSize = 0 },
			want:   "deletion.page_size",
		},
		{
			name:   "SlashInCollection",
			mutate: func(c *Config) { c.Deletion.UserCollections = []string{"a/b"} },
			want:   "deletion.user_collections",
		},
		{
			name:   "BrokersWithoutRegistry",
			mutate: func(c *Config) { c.Broker.SeedBrokers = []string{"a:9092"} },
			want:   "broker.schema_registry_urls",
		},
		{
			name:   "TokenWithoutIdentity",
			mutate: func(c *Config) { c.Auth.Tokens = []Token{{Token: "t"}} },
			want:   "auth.tokens[0]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Deletion.UserCollections = append([]string(nil), valid.Deletion.UserCollections...)
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("MissingSecretsAreValid", func(t *testing.T) {
		cfg := valid
		cfg.Provider.APIKey = ""
		cfg.Webhook.Secret = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadFrom("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Len(t, cfg.Auth.Tokens, 1)
}
