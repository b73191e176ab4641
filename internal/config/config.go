package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teammeng/foscion/internal/apperr"
	"github.com/teammeng/foscion/internal/security"
)

// DefaultPath is read when CONFIG_PATH is unset.
const DefaultPath = "backend.yaml"

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port               int      `yaml:"port" env:"PORT"`
	DBURL              string   `yaml:"db_url" env:"DB_URL"`
	MaxConns           int32    `yaml:"max_conns" env:"DB_MAX_CONNS"`
	AllowedOrigins     []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	HideInternalErrors bool     `yaml:"hide_internal_errors" env:"HIDE_INTERNAL_ERRORS"`
}

// AuthConfig holds the PEM encoded signing (ek) and verification (dk) keys
// and the password hashing cost.
type AuthConfig struct {
	EK   string     `yaml:"ek" env:"AUTH_EK"`
	DK   string     `yaml:"dk" env:"AUTH_DK"`
	Hash HashConfig `yaml:"hash"`
}

type HashConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib" env:"HASH_MEMORY_KIB"`
	Iterations  uint32 `yaml:"iterations" env:"HASH_ITERATIONS"`
	Parallelism uint8  `yaml:"parallelism" env:"HASH_PARALLELISM"`
	Workers     int    `yaml:"workers" env:"HASH_WORKERS"`
}

// Params returns the Argon2id parameters for new hashes. Salt and digest
// lengths are fixed.
func (h HashConfig) Params() security.Params {
	p := security.DefaultParams()
	p.MemoryKiB = h.MemoryKiB
	p.Iterations = h.Iterations
	p.Parallelism = h.Parallelism
	return p
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML file at path, applies environment overrides (a .env
// file in the working directory is loaded first when present) and fills
// defaults. A missing or unreadable file is an IO error; anything that does
// not decode or validate is a config parse error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, apperr.ConfigParse(fmt.Errorf("load .env: %w", err))
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, apperr.IO(fmt.Errorf("open config %s: %w", path, err))
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a YAML document, then applies environment overrides and
// defaults. Unknown keys are ignored.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, apperr.IO(fmt.Errorf("read config: %w", err))
	}

	var cfg Config
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, apperr.ConfigParse(fmt.Errorf("decode yaml: %w", err))
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, apperr.ConfigParse(fmt.Errorf("parse env: %w", err))
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, apperr.ConfigParse(err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Server.MaxConns <= 0 {
		c.Server.MaxConns = 5
	}
	if c.Auth.Hash.MemoryKiB == 0 {
		c.Auth.Hash.MemoryKiB = 19 * 1024
	}
	if c.Auth.Hash.Iterations == 0 {
		c.Auth.Hash.Iterations = 2
	}
	if c.Auth.Hash.Parallelism == 0 {
		c.Auth.Hash.Parallelism = 1
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "foscion"
	}
}

func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d must be between 1 and 65535", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.DBURL) == "" {
		return errors.New("server.db_url is required")
	}
	if strings.TrimSpace(c.Auth.EK) == "" {
		return errors.New("auth.ek is required")
	}
	if strings.TrimSpace(c.Auth.DK) == "" {
		return errors.New("auth.dk is required")
	}
	if err := c.Auth.Hash.Params().Validate(); err != nil {
		return fmt.Errorf("auth.hash: %w", err)
	}
	if c.Auth.Hash.Workers < 0 {
		return fmt.Errorf("auth.hash.workers %d must not be negative", c.Auth.Hash.Workers)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
