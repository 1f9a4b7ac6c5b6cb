/*
Package config loads server configuration.

PRECEDENCE (lowest first):
  1. Defaults below
  2. ledger.yaml in the working directory, or the file given to Load
  3. .env in the working directory
  4. LEDGER_* environment variables (LEDGER_HTTP_PORT -> http.port)
  5. Command-line flags, applied by cmd/server after Load
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Database    DatabaseConfig `mapstructure:"database"`
	Log         LogConfig      `mapstructure:"log"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Demo        DemoConfig     `mapstructure:"demo"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerConfig struct {
	// AllowInvoiceDowngrade accepts any invoice status transition.
	AllowInvoiceDowngrade bool `mapstructure:"allow_invoice_downgrade"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DemoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const envPrefix = "LEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("database.path", "ledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ledger.allow_invoice_downgrade", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("demo.enabled", true)
}

// Load reads configuration. An empty file means "ledger.yaml if present";
// a non-empty file must exist.
func Load(file string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
