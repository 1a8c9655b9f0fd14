// Package config loads service configuration from an optional YAML file, an
// optional .env file and CAREVAULT_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CAREVAULT_"

type Auth struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	TTL       time.Duration `yaml:"ttl"`
	DevTokens bool          `yaml:"dev_tokens"`
}

type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ContentStore selects where sealed record bundles live. Only the smoke tool
// and devices use it; the service itself never touches record content.
type ContentStore struct {
	Driver   string `yaml:"driver"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	HTTPAddr      string       `yaml:"http_addr"`
	GRPCAddr      string       `yaml:"grpc_addr"`
	PGDSN         string       `yaml:"pg_dsn"`
	Administrator string       `yaml:"administrator"`
	LogLevel      string       `yaml:"log_level"`
	Auth          Auth         `yaml:"auth"`
	RateLimit     RateLimit    `yaml:"rate_limit"`
	ContentStore  ContentStore `yaml:"content_store"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		Auth: Auth{
			Issuer: "carevault",
			TTL:    time.Hour,
		},
		RateLimit: RateLimit{
			PerSecond: 50,
			Burst:     100,
		},
		ContentStore: ContentStore{
			Driver: "memory",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// CAREVAULT_CONFIG is consulted; a missing file is only an error when a path
// was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(envPrefix + "CONFIG")
		explicit = path != ""
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GRPCAddr)
	str("PG_DSN", &cfg.PGDSN)
	str("ADMINISTRATOR", &cfg.Administrator)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("AUTH_SECRET", &cfg.Auth.Secret)
	str("AUTH_ISSUER", &cfg.Auth.Issuer)
	str("CONTENT_DRIVER", &cfg.ContentStore.Driver)
	str("S3_BUCKET", &cfg.ContentStore.Bucket)
	str("S3_REGION", &cfg.ContentStore.Region)
	str("S3_PREFIX", &cfg.ContentStore.Prefix)
	str("S3_ENDPOINT", &cfg.ContentStore.Endpoint)

	errs := errsx.Map{}
	if v, ok := lookup(envPrefix + "AUTH_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs.Set("auth.ttl", err)
		} else {
			cfg.Auth.TTL = d
		}
	}
	if v, ok := lookup(envPrefix + "AUTH_DEV_TOKENS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs.Set("auth.dev_tokens", err)
		} else {
			cfg.Auth.DevTokens = b
		}
	}
	if v, ok := lookup(envPrefix + "RATE_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs.Set("rate_limit.per_second", err)
		} else {
			cfg.RateLimit.PerSecond = f
		}
	}
	if v, ok := lookup(envPrefix + "RATE_BURST"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs.Set("rate_limit.burst", err)
		} else {
			cfg.RateLimit.Burst = n
		}
	}
	return errs.AsError()
}

// Validate reports every problem at once, keyed by setting name.
func (c Config) Validate() error {
	errs := errsx.Map{}
	if c.HTTPAddr == "" {
		errs.Set("http_addr", errors.New("must not be empty"))
	}
	if c.GRPCAddr == "" {
		errs.Set("grpc_addr", errors.New("must not be empty"))
	}
	if c.Administrator == "" {
		errs.Set("administrator", errors.New("must not be empty"))
	}
	if len(c.Auth.Secret) < 32 {
		errs.Set("auth.secret", fmt.Errorf("must be at least 32 bytes, got %d", len(c.Auth.Secret)))
	}
	if c.Auth.TTL <= 0 {
		errs.Set("auth.ttl", fmt.Errorf("must be positive, got %s", c.Auth.TTL))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.Set("log_level", fmt.Errorf("unknown level %q", c.LogLevel))
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		errs.Set("rate_limit", errors.New("must not be negative"))
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst == 0 {
		errs.Set("rate_limit.burst", errors.New("must be positive when a rate is set"))
	}
	switch c.ContentStore.Driver {
	case "memory":
	case "s3":
		if c.ContentStore.Bucket == "" {
			errs.Set("content_store.bucket", errors.New("required for the s3 driver"))
		}
	default:
		errs.Set("content_store.driver", fmt.Errorf("unknown driver %q", c.ContentStore.Driver))
	}
	return errs.AsError()
}
