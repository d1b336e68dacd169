// Package config loads the server configuration from the environment.
//
// Values come from process environment variables. In development a .env
// file in the working directory is loaded first; variables already set in
// the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// DevSecretKey signs sessions when RECIPES_SECRET_KEY is unset. It is only
// fit for local development; the server logs a warning when it is in use.
const DevSecretKey = "recipe-list-development-secret-key-change-me"

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

type Config struct {
	Port             int    `env:"PORT"                 envDefault:"8080"`
	DatabaseURL      string `env:"RECIPES_DATABASE_URL" envDefault:"data/recipes.db"`
	SecretKey        string `env:"RECIPES_SECRET_KEY"`
	MaxSearchResults int    `env:"MAX_SEARCH_RESULTS"   envDefault:"50"`

	// VarFolder holds uploaded files when StorageBackend is local.
	VarFolder    string `env:"VAR_FOLDER"    envDefault:"var"`
	StaticFolder string `env:"STATIC_FOLDER" envDefault:"web/static"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	S3             S3

	Log Log

	RememberCookieDuration time.Duration `env:"REMEMBER_COOKIE_DURATION" envDefault:"120m"`
	LoginRatePerSecond     float64       `env:"LOGIN_RATE_PER_SECOND"    envDefault:"1"`
	LoginRateBurst         int           `env:"LOGIN_RATE_BURST"         envDefault:"5"`

	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only set it behind a reverse proxy that overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`
}

// S3 configures the object storage backend. Any S3-compatible service
// (MinIO included) works.
type S3 struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION"     envDefault:"us-east-1"`
	Bucket    string `env:"S3_BUCKET"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	UseSSL    bool   `env:"S3_USE_SSL"`
}

type Log struct {
	Level    string `env:"LOG_LEVEL"     envDefault:"info"`
	Format   string `env:"LOG_FORMAT"    envDefault:"text"`
	ToStdout bool   `env:"LOG_TO_STDOUT" envDefault:"false"`
	Dir      string `env:"LOG_DIR"       envDefault:"logs"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}
	return parse(env.Options{})
}

// FromMap builds a Config from vars alone, ignoring the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsingDevSecret reports whether no secret key was configured.
func (c *Config) UsingDevSecret() bool {
	return c.SecretKey == ""
}

// Secret returns the session signing key, falling back to DevSecretKey.
func (c *Config) Secret() string {
	if c.SecretKey == "" {
		return DevSecretKey
	}
	return c.SecretKey
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.MaxSearchResults <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SEARCH_RESULTS must be positive, got %d", c.MaxSearchResults))
	}
	switch c.StorageBackend {
	case BackendLocal:
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q",
			BackendLocal, BackendS3, c.StorageBackend))
	}
	if c.RememberCookieDuration <= 0 {
		errs = append(errs, errors.New("REMEMBER_COOKIE_DURATION must be positive"))
	}
	if c.LoginRatePerSecond <= 0 || c.LoginRateBurst <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_SECOND and LOGIN_RATE_BURST must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
