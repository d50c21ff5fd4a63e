// Package config loads the registry configuration: a YAML file first, then
// YMM_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gartstein/ymm/internal/registry/db"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. YMM_DB_HOST.
const EnvPrefix = "YMM"

// DefaultPath is used when YMM_CONFIG is not set.
var DefaultPath = filepath.Join("internal", "registry", "config", "config.yaml")

type Config struct {
	GRPCPort       int           `yaml:"GRPC_PORT" envconfig:"GRPC_PORT" validate:"min=1,max=65535"`
	HTTPPort       int           `yaml:"HTTP_PORT" envconfig:"HTTP_PORT" validate:"min=1,max=65535"`
	GRPCReflection bool          `yaml:"GRPC_REFLECTION" envconfig:"GRPC_REFLECTION"`
	RequestTimeout time.Duration `yaml:"REQUEST_TIMEOUT" envconfig:"REQUEST_TIMEOUT" validate:"min=0"`

	DBDriver      string        `yaml:"DB_DRIVER" envconfig:"DB_DRIVER" validate:"oneof=postgres sqlite"`
	DBHost        string        `yaml:"DB_HOST" envconfig:"DB_HOST" validate:"required_if=DBDriver postgres"`
	DBPort        int           `yaml:"DB_PORT" envconfig:"DB_PORT" validate:"min=0,max=65535"`
	DBUser        string        `yaml:"DB_USER" envconfig:"DB_USER"`
	DBPassword    string        `yaml:"DB_PASSWORD" envconfig:"DB_PASSWORD"`
	DBName        string        `yaml:"DB_NAME" envconfig:"DB_NAME" validate:"required_if=DBDriver postgres"`
	DBSSLMode     string        `yaml:"DB_SSLMODE" envconfig:"DB_SSLMODE"`
	DBSQLitePath  string        `yaml:"DB_SQLITE_PATH" envconfig:"DB_SQLITE_PATH" validate:"required_if=DBDriver sqlite"`
	DBLockTimeout time.Duration `yaml:"DB_LOCK_TIMEOUT" envconfig:"DB_LOCK_TIMEOUT" validate:"min=0"`
	DBMaxConns    int           `yaml:"DB_MAX_CONNS" envconfig:"DB_MAX_CONNS" validate:"min=0"`

	KafkaBrokers []string `yaml:"KAFKA_BROKERS" envconfig:"KAFKA_BROKERS"`
	Topic        string   `yaml:"TOPIC" envconfig:"TOPIC"`

	JWTSecret string `yaml:"JWT_SECRET" envconfig:"JWT_SECRET" validate:"required"`

	LicenseNo        string `yaml:"LICENSE_NO" envconfig:"LICENSE_NO" validate:"required,numeric"`
	ManualCutoffYear int    `yaml:"MANUAL_CUTOFF_YEAR" envconfig:"MANUAL_CUTOFF_YEAR" validate:"min=1900,max=9999"`
	// WorkingYear seeds the settings row on first start; zero means the current year.
	WorkingYear int `yaml:"WORKING_YEAR" envconfig:"WORKING_YEAR" validate:"min=0,max=9999"`

	LogDevelopment bool `yaml:"LOG_DEVELOPMENT" envconfig:"LOG_DEVELOPMENT"`
}

// Default returns the configuration used for keys neither the file nor the
// environment set.
func Default() *Config {
	return &Config{
		GRPCPort:         9090,
		HTTPPort:         8080,
		RequestTimeout:   15 * time.Second,
		DBDriver:         db.DriverPostgres,
		DBHost:           "localhost",
		DBPort:           5432,
		DBUser:           "ymm",
		DBName:           "ymm",
		DBSSLMode:        "disable",
		DBLockTimeout:    5 * time.Second,
		Topic:            "registry.events",
		LicenseNo:        numbering.DefaultLicenseNo,
		ManualCutoffYear: numbering.DefaultCutoffYear,
	}
}

// Load reads path (when non-empty and present), applies YMM_* overrides and
// validates the result. A missing file is only an error when path was
// given explicitly through YMM_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := os.Getenv(EnvPrefix + "_CONFIG")
	if explicit != "" {
		path = explicit
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicit != "" {
				return nil, err
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(file, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Database converts the DB_* keys into a repository configuration.
func (c *Config) Database() *db.Config {
	return &db.Config{
		Driver:      c.DBDriver,
		Host:        c.DBHost,
		Port:        c.DBPort,
		User:        c.DBUser,
		Password:    c.DBPassword,
		DBName:      c.DBName,
		SSLMode:     c.DBSSLMode,
		SQLitePath:  c.DBSQLitePath,
		LockTimeout: c.DBLockTimeout,
		MaxConns:    c.DBMaxConns,
	}
}

// DefaultWorkingYear resolves WorkingYear against the clock.
func (c *Config) DefaultWorkingYear(now time.Time) int {
	if c.WorkingYear > 0 {
		return c.WorkingYear
	}
	return now.Year()
}
