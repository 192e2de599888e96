// Package config loads the memkeep server configuration.
//
// Settings are resolved in three layers: built-in defaults, an optional
// YAML file (~/.config/memkeep/memkeep.yaml by default), and environment
// variables. Environment variables may also come from a .env file in the
// working directory; real environment variables win over .env entries.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/memkeep/memkeep/pkg/paths"
)

// Transport modes for the MCP server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// Backend names accepted by the store factory.
const (
	BackendMemory  = "memory"
	BackendSQLite  = "sqlite"
	BackendRedis   = "redis"
	BackendMongoDB = "mongodb"
)

// Config holds every tunable of the memkeep server.
type Config struct {
	// Environment names the deployment environment (development, production).
	Environment string `yaml:"environment,omitempty"`
	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Transport selects how the MCP server is exposed: stdio or streamable-http.
	Transport string `yaml:"transport,omitempty"`
	// Host and Port bind the listener when the transport is streamable-http.
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	// Backend selects the store variant: memory, sqlite, redis or mongodb.
	Backend string `yaml:"backend,omitempty"`

	// AllowedNamespaces restricts access to the listed namespaces.
	// Empty means every namespace is allowed.
	AllowedNamespaces []string `yaml:"allowed_namespaces,omitempty"`
	// ReadOnlyFiles lists "namespace/key" pairs that must not be written.
	ReadOnlyFiles []string `yaml:"read_only_files,omitempty"`
	// AllowedFiles restricts trigger descriptors to the listed file names.
	// Empty means every descriptor entry is kept.
	AllowedFiles []string `yaml:"allowed_files,omitempty"`

	// TriggersDir is the directory holding trigger descriptor files.
	TriggersDir string `yaml:"triggers_dir,omitempty"`

	Redis   Redis   `yaml:"redis,omitempty"`
	SQLite  SQLite  `yaml:"sqlite,omitempty"`
	MongoDB MongoDB `yaml:"mongodb,omitempty"`
}

// Redis holds connection settings for the redis backend.
type Redis struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SQLite holds settings for the sqlite backend.
type SQLite struct {
	Path string `yaml:"path,omitempty"`
}

// MongoDB holds connection settings for the mongodb backend.
type MongoDB struct {
	URI        string `yaml:"uri,omitempty"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "memkeep.yaml")
}

// Default returns a Config with every setting at its built-in default.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Transport:   TransportStdio,
		Host:        "0.0.0.0",
		Port:        8000,
		Backend:     BackendSQLite,
		TriggersDir: filepath.Join(paths.GetConfigDir(), "triggers"),
		Redis: Redis{
			Host: "localhost",
			Port: 6379,
		},
		SQLite: SQLite{
			Path: filepath.Join(paths.GetDataDir(), "memories.db"),
		},
		MongoDB: MongoDB{
			URI:        "mongodb://localhost:27017",
			Database:   "memkeep",
			Collection: "memories",
		},
	}
}

// Load resolves the configuration. When path is empty the default config
// file is used if it exists; an explicitly given path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s\n%s", path, yaml.FormatError(err, true, true))
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine, defaults plus environment apply.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	lookup, err := envLookup()
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.MarshalWithOptions(c, yaml.Indent(2))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}

// ResolveTransport normalizes the configured transport name. "http" is
// accepted as an alias for streamable-http.
func (c *Config) ResolveTransport() (string, error) {
	switch strings.ToLower(c.Transport) {
	case TransportStdio:
		return TransportStdio, nil
	case TransportHTTP, "http":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("invalid transport mode '%s': must be '%s' or '%s'", c.Transport, TransportStdio, TransportHTTP)
	}
}

// SlogLevel converts the configured log level name to a slog.Level.
// Unknown names fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envLookup returns a lookup function over the process environment with
// the working directory's .env file as fallback.
func envLookup() (func(string) (string, bool), error) {
	fallback, err := readEnvFile(".env")
	if err != nil {
		return nil, err
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var err error

	text := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = splitList(v)
		}
	}
	number := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || err != nil {
			return
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			err = fmt.Errorf("invalid %s value '%s': %w", key, v, convErr)
			return
		}
		*dst = n
	}

	text("ENVIRONMENT", &c.Environment)
	text("LOG_LEVEL", &c.LogLevel)
	text("TRANSPORT", &c.Transport)
	text("HOST", &c.Host)
	number("PORT", &c.Port)
	text("BACKEND", &c.Backend)
	list("ALLOWED_NAMESPACES", &c.AllowedNamespaces)
	list("READ_ONLY_FILES", &c.ReadOnlyFiles)
	list("ALLOWED_FILES", &c.AllowedFiles)
	text("TRIGGERS_DIR", &c.TriggersDir)

	text("REDIS_HOST", &c.Redis.Host)
	number("REDIS_PORT", &c.Redis.Port)
	text("REDIS_PASSWORD", &c.Redis.Password)
	number("REDIS_DB", &c.Redis.DB)

	text("SQLITE_PATH", &c.SQLite.Path)

	text("MONGODB_URI", &c.MongoDB.URI)
	text("MONGODB_DATABASE", &c.MongoDB.Database)
	text("MONGODB_COLLECTION", &c.MongoDB.Collection)

	return err
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
