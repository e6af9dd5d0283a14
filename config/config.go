package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFileEnvName = "PRICESYNC_CONFIG_FILE"
	envPrefix         = "PRICESYNC"
)

var storageDrivers = []string{"memory", "sqlite", "postgres", "firestore"}

type httpServer struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	HandlerTimeout    time.Duration `mapstructure:"handler_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

type provider struct {
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	APIKey       string        `mapstructure:"api_key"`
	Command      string        `mapstructure:"command"`
	SignCommand  string        `mapstructure:"sign_command"`
	SKUField     string        `mapstructure:"sku_field"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type webhook struct {
	Secret string `mapstructure:"secret"`
}

type storage struct {
	Driver           string        `mapstructure:"driver"`
	DSN              string        `mapstructure:"dsn"`
	FirestoreProject string        `mapstructure:"firestore_project"`
	FirestoreCreds   string        `mapstructure:"firestore_credentials_file"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	BatchSize        int           `mapstructure:"batch_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

type deletion struct {
	PageSize        int           `mapstructure:"page_size"`
	PagePause       time.Duration `mapstructure:"page_pause"`
	UserRoot        string        `mapstructure:"user_root"`
	UserCollections []string      `mapstructure:"user_collections"`
}

type tlsFiles struct {
	CA   string `mapstructure:"ca"`
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

type broker struct {
	SeedBrokers        []string `mapstructure:"seed_brokers"`
	SchemaRegistryURLs []string `mapstructure:"schema_registry_urls"`
	StatusTopic        string   `mapstructure:"status_topic"`
	Partitions         int32    `mapstructure:"partitions"`
	ReplicationFactor  int16    `mapstructure:"replication_factor"`
	TLS                tlsFiles `mapstructure:"tls"`
}

// Token grants the bearer of Token the identity of UserID.
type Token struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
	Admin  bool   `mapstructure:"admin"`
}

type auth struct {
	Tokens []Token `mapstructure:"tokens"`
}

type Config struct {
	LogLevel slog.Level `mapstructure:"log_level"`
	HTTP     httpServer `mapstructure:"http"`
	Provider provider   `mapstructure:"provider"`
	Webhook  webhook    `mapstructure:"webhook"`
	Storage  storage    `mapstructure:"storage"`
	Deletion deletion   `mapstructure:"deletion"`
	Broker   broker     `mapstructure:"broker"`
	Auth     auth       `mapstructure:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.handler_timeout", 5*time.Minute)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)

	v.SetDefault("provider.url", "https://api.digiflazz.com/v1/price-list")
	v.SetDefault("provider.username", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.command", "prepaid")
	v.SetDefault("provider.sign_command", "pricelist")
	v.SetDefault("provider.sku_field", "buyer_sku_code")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.max_attempts", 3)
	v.SetDefault("provider.retry_delay", 500*time.Millisecond)
	v.SetDefault("provider.max_body_bytes", 32<<20)

	v.SetDefault("webhook.secret", "")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:pricesync.db")
	v.SetDefault("storage.firestore_project", "")
	v.SetDefault("storage.firestore_credentials_file", "")
	v.SetDefault("storage.max_batch_size", 500)
	v.SetDefault("storage.batch_size", 500)
	v.SetDefault("storage.max_attempts", 3)
	v.SetDefault("storage.retry_delay", 200*time.Millisecond)

	v.SetDefault("deletion.page_size", 100)
	v.SetDefault("deletion.page_pause", time.Duration(0))
	v.SetDefault("deletion.user_root", "finance")
	v.SetDefault("deletion.user_collections",
		[]string{"transactions", "goals", "debts", "categories"})

	v.SetDefault("broker.seed_brokers", []string{})
	v.SetDefault("broker.schema_registry_urls", []string{})
	v.SetDefault("broker.status_topic", "pricesync.transaction-status")
	v.SetDefault("broker.partitions", 3)
	v.SetDefault("broker.replication_factor", 3)
	v.SetDefault("broker.tls.ca", "")
	v.SetDefault("broker.tls.cert", "")
	v.SetDefault("broker.tls.key", "")

	v.SetDefault("auth.tokens", []Token{})
}

// Load reads the config selected by the --config flag or the
// PRICESYNC_CONFIG_FILE env and exits the process on failure.
func Load() Config {
	cfg, err := LoadFrom(getConfigFilepath())
	if err != nil {
		die(err)
	}
	return cfg
}

// LoadFrom reads the YAML file at path over the defaults and applies
// PRICESYNC_* env overrides. An empty path skips the file.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	err := v.UnmarshalExact(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects structural mistakes. Missing secrets are reported by
// the operations that need them.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTP.Addr != "", "http.addr is empty")
	check(c.HTTP.MaxBodyBytes > 0, "http.max_body_bytes must be positive")
	check(c.Provider.URL != "", "provider.url is empty")
	check(c.Provider.Timeout > 0, "provider.timeout must be positive")

	check(slices.Contains(storageDrivers, c.Storage.Driver),
		"storage.driver %q is not one of %v", c.Storage.Driver, storageDrivers)
	switch c.Storage.Driver {
	case "sqlite", "postgres":
		check(c.Storage.DSN != "", "storage.dsn is required by %q", c.Storage.Driver)
	case "firestore":
		check(c.Storage.FirestoreProject != "",
			"storage.firestore_project is required by firestore")
	}
	check(c.Storage.MaxBatchSize > 0, "storage.max_batch_size must be positive")
	check(c.Storage.BatchSize >= 0, "storage.batch_size must not be negative")

	check(c.Deletion.PageSize > 0 && c.Deletion.PageSize <= c.Storage.MaxBatchSize,
		"deletion.page_size must be in [1, storage.max_batch_size]")
	check(c.Deletion.PagePause >= 0, "deletion.page_pause must not be negative")
	check(c.Deletion.UserRoot != "", "deletion.user_root is empty")
	check(len(c.Deletion.UserCollections) > 0, "deletion.user_collections is empty")
	for _, col := range c.Deletion.UserCollections {
		check(col != "" && !strings.Contains(col, "/"),
			"deletion.user_collections has malformed name %q", col)
	}

	if len(c.Broker.SeedBrokers) > 0 {
		check(c.Broker.StatusTopic != "", "broker.status_topic is empty")
		check(len(c.Broker.SchemaRegistryURLs) > 0,
			"broker.schema_registry_urls is required with seed brokers")
	}

	for i, t := range c.Auth.Tokens {
		check(t.Token != "", "auth.tokens[%d].token is empty", i)
		check(t.UserID != "" || t.Admin,
			"auth.tokens[%d] needs user_id or admin", i)
	}

	return errors.Join(errs...)
}

func getConfigFilepath() string {
	cmdLine := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	arg := cmdLine.String("config", "", "config file")
	_ = cmdLine.Parse(os.Args[1:])
	env, ok := os.LookupEnv(configFileEnvName)
	if ok {
		return env
	}
	return *arg
}

func die(err error) {
	fmt.Printf("failed to load config: %v\n", err)
	os.Exit(2)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func (c Config) Print() {
	tamplate := `
	General:
	LogLevel=%q
	HTTPAddr=%q
	HandlerTimeout=%s

	Provider:
	URL=%q
	Username=%q
	APIKey=%q
	Command=%q
	Timeout=%s
	MaxAttempts=%d

	Webhook:
	Secret=%q

	Storage:
	Driver=%q
	FirestoreProject=%q
	MaxBatchSize=%d
	BatchSize=%d

	Deletion:
	PageSize=%d
	UserRoot=%q
	UserCollections=%q

	Broker:
	SeedBrokers=%q
	SchemaRegistryURLs=%q
	StatusTopic=%q

	Auth:
	Tokens=%d

`
	fmt.Println("Loaded config:")
	fmt.Printf(
		strings.TrimLeft(tamplate, "\n"),
		c.LogLevel,
		c.HTTP.Addr,
		c.HTTP.HandlerTimeout,
		c.Provider.URL,
		c.Provider.Username,
		mask(c.Provider.APIKey),
		c.Provider.Command,
		c.Provider.Timeout,
		c.Provider.MaxAttempts,
		mask(c.Webhook.Secret),
		c.Storage.Driver,
		c.Storage.FirestoreProject,
		c.Storage.MaxBatchSize,
		c.Storage.BatchSize,
		c.Deletion.PageSize,
		c.Deletion.UserRoot,
		c.Deletion.UserCollections,
		c.Broker.SeedBrokers,
		c.Broker.SchemaRegistryURLs,
		c.Broker.StatusTopic,
		len(c.Auth.Tokens),
	)
}
