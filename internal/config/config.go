// Package config loads medtrack settings.
//
// Precedence, highest first: explicit overrides (command-line flags),
// MEDTRACK_* environment variables, variables from a .env file, the YAML
// config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendSQLite, BackendFile, BackendRedis, BackendPostgres, BackendMemory}

// DevTokenSecret is the token secret used when none is configured. Sessions
// signed with it are only safe on a single-user machine.
const DevTokenSecret = "medtrack-dev-secret"

// Keys, as used in the config file. Environment variables are the upper-case
// form with a MEDTRACK_ prefix.
const (
	KeyBackend      = "backend"
	KeyDatabasePath = "database_path"
	KeyDataDir      = "data_dir"
	KeyRedisURL     = "redis_url"
	KeyPostgresURL  = "postgres_url"
	KeyAuthDelay    = "auth_delay"
	KeyTokenSecret  = "token_secret"
	KeyTokenTTL     = "token_ttl"
	KeySessionFile  = "session_file"
	KeyHTTPAddr     = "http_addr"
	KeyBcryptCost   = "bcrypt_cost"
	KeySeed         = "seed"
)

// Config holds every setting.
type Config struct {
	Backend      string        `mapstructure:"backend"`
	DatabasePath string        `mapstructure:"database_path"`
	DataDir      string        `mapstructure:"data_dir"`
	RedisURL     string        `mapstructure:"redis_url"`
	PostgresURL  string        `mapstructure:"postgres_url"`
	AuthDelay    time.Duration `mapstructure:"auth_delay"`
	TokenSecret  string        `mapstructure:"token_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	SessionFile  string        `mapstructure:"session_file"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`
	Seed         bool          `mapstructure:"seed"`
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit config path. When empty, medtrack.yaml is
	// looked up in the working directory and is optional.
	ConfigFile string

	// EnvFile is a dotenv file to load. Defaults to ".env"; a missing file
	// is ignored.
	EnvFile string

	// Overrides win over every other source.
	Overrides map[string]any
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, BackendSQLite)
	v.SetDefault(KeyDatabasePath, "")
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyRedisURL, "")
	v.SetDefault(KeyPostgresURL, "")
	v.SetDefault(KeyAuthDelay, time.Second)
	v.SetDefault(KeyTokenSecret, DevTokenSecret)
	v.SetDefault(KeyTokenTTL, 24*time.Hour)
	v.SetDefault(KeySessionFile, "")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyBcryptCost, 0)
	v.SetDefault(KeySeed, true)
}

// Load reads and validates the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overwrites variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MEDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("medtrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths fills paths derived from DataDir.
func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".medtrack")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "medtrack.db")
	}
	if c.SessionFile == "" {
		c.SessionFile = filepath.Join(c.DataDir, "session")
	}
	return nil
}

// Validate checks that the settings are usable together.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("invalid %s %q: must be one of %v", KeyBackend, c.Backend, Backends)
	}
	if c.Backend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("%s is required for the redis backend", KeyRedisURL)
	}
	if c.Backend == BackendPostgres && c.PostgresURL == "" {
		return fmt.Errorf("%s is required for the postgres backend", KeyPostgresURL)
	}
	if c.AuthDelay < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeyAuthDelay, c.AuthDelay)
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("%s must not be empty", KeyTokenSecret)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyTokenTTL, c.TokenTTL)
	}
	if c.BcryptCost != 0 && (c.BcryptCost < 4 || c.BcryptCost > 31) {
		return fmt.Errorf("%s must be between 4 and 31, got %d", KeyBcryptCost, c.BcryptCost)
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with DevTokenSecret.
func (c *Config) UsesDevSecret() bool {
	return c.TokenSecret == DevTokenSecret
}
