// Package config loads dotpricecli settings from an optional file, the
// DOTPRICE_* environment and a .env file holding registrar secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "DOTPRICE"

type Config struct {
	Registrars      []RegistrarConfig         `mapstructure:"registrars"`
	Locations       map[string]LocationConfig `mapstructure:"locations"`
	Rates           map[string]string         `mapstructure:"rates"`
	Policy          PolicyConfig              `mapstructure:"policy"`
	Cache           CacheConfig               `mapstructure:"cache"`
	Deadline        time.Duration             `mapstructure:"deadline"`
	MaxConnsPerHost int                       `mapstructure:"max_conns_per_host"`
	BulkConcurrency int                       `mapstructure:"bulk_concurrency"`
	Breaker         BreakerConfig             `mapstructure:"breaker"`
	Queue           QueueConfig               `mapstructure:"queue"`
	Store           StoreConfig               `mapstructure:"store"`
	Verify          VerifyConfig              `mapstructure:"verify"`
	Log             LogConfig                 `mapstructure:"log"`
}

type RegistrarConfig struct {
	Name    string        `mapstructure:"name"`
	Kind    string        `mapstructure:"kind"`
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// AvgPrice prices available names whose lookup carries no price.
	AvgPrice string `mapstructure:"avg_price"`

	// Credentials. Empty values are filled from <NAME>_API_KEY style
	// environment variables.
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Username   string `mapstructure:"username"`
	ClientIP   string `mapstructure:"client_ip"`
	AuthHeader string `mapstructure:"auth_header"`

	MinDelay      time.Duration `mapstructure:"min_delay"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type LocationConfig struct {
	Markup   string `mapstructure:"markup"`
	Currency string `mapstructure:"currency"`
	Symbol   string `mapstructure:"symbol"`
}

type PolicyConfig struct {
	MinMargin        string `mapstructure:"min_margin"`
	MaxMarkupPercent string `mapstructure:"max_markup_percent"`
}

type CacheConfig struct {
	Backend        string        `mapstructure:"backend"` // memory|redis|none
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	Prefix         string        `mapstructure:"prefix"`
	TTLAvailable   time.Duration `mapstructure:"ttl_available"`
	TTLUnavailable time.Duration `mapstructure:"ttl_unavailable"`
}

type BreakerConfig struct {
	Failures     uint32        `mapstructure:"failures"`
	OpenDuration time.Duration `mapstructure:"open_duration"`
}

type QueueConfig struct {
	Backend      string   `mapstructure:"backend"` // redis|kafka
	RedisAddr    string   `mapstructure:"redis_addr"`
	Stream       string   `mapstructure:"stream"`
	Group        string   `mapstructure:"group"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	Topic        string   `mapstructure:"topic"`

	// Redis only: pending entries idle past ClaimIdle are taken over.
	ClaimIdle     time.Duration `mapstructure:"claim_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type StoreConfig struct {
	Backend   string `mapstructure:"backend"` // redis|postgres
	RedisAddr string `mapstructure:"redis_addr"`
	DSN       string `mapstructure:"dsn"`
}

type VerifyConfig struct {
	Strict  bool          `mapstructure:"strict"`
	NoWHOIS bool          `mapstructure:"no_whois"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path (optional) over the defaults, applies DOTPRICE_*
// overrides and registrar secrets from the environment, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applySecrets(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applySecrets fills empty credentials from <NAME>_API_KEY,
// <NAME>_API_SECRET (or <NAME>_SECRET_API_KEY), <NAME>_USERNAME,
// <NAME>_TOKEN and <NAME>_CLIENT_IP.
func (c *Config) applySecrets(getenv func(string) string) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}
	for i := range c.Registrars {
		r := &c.Registrars[i]
		p := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(r.Name)) + "_"
		if r.APIKey == "" {
			r.APIKey = first(p+"API_KEY", p+"TOKEN")
		}
		if r.APISecret == "" {
			r.APISecret = first(p+"SECRET_API_KEY", p+"API_SECRET")
		}
		if r.Username == "" {
			r.Username = first(p+"USERNAME", p+"API_USER")
		}
		if r.ClientIP == "" {
			r.ClientIP = first(p + "CLIENT_IP")
		}
	}
}

// Registrar returns the named registrar section.
func (c *Config) Registrar(name string) (RegistrarConfig, bool) {
	for _, r := range c.Registrars {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return RegistrarConfig{}, false
}
