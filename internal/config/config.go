// Package config loads server configuration from defaults, an optional YAML file, a .env file,
// environment variables and command-line flags.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names an optional YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config holds the application configuration.
type Config struct {
	App        AppConfig        `koanf:"app"`
	Logger     LoggerConfig     `koanf:"logger"`
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Auth       AuthConfig       `koanf:"auth"`
	Collection CollectionConfig `koanf:"collection"`
	Metadata   MetadataConfig   `koanf:"metadata"`
	Invites    InviteConfig     `koanf:"invites"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `koanf:"environment"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `koanf:"level"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	CORSOrigins  []string      `koanf:"cors_origins"`
	// InviteAcceptPerMinute limits invite acceptance attempts per viewer.
	InviteAcceptPerMinute int `koanf:"invite_accept_per_minute"`
	// RegisterPerMinute limits registrations per client IP.
	RegisterPerMinute int `koanf:"register_per_minute"`
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	// TokenKey is a hex-encoded 32-byte PASETO v4 symmetric key. Empty means load or generate one
	// next to the database.
	TokenKey            string        `koanf:"token_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// CollectionConfig tunes collection browsing.
type CollectionConfig struct {
	PageSize         int           `koanf:"page_size"`
	FullScanBatch    int           `koanf:"full_scan_batch"`
	JoinedSortPaging bool          `koanf:"joined_sort_paging"`
	SessionIdleTTL   time.Duration `koanf:"session_idle_ttl"`
}

// MetadataConfig configures the external metadata provider. An empty ProviderURL disables enrichment.
type MetadataConfig struct {
	ProviderURL       string        `koanf:"provider_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	BreakerFailures   uint32        `koanf:"breaker_failures"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout"`
}

// InviteConfig holds invite defaults.
type InviteConfig struct {
	DefaultMaxUses int           `koanf:"default_max_uses"`
	DefaultTTL     time.Duration `koanf:"default_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Database: DatabaseConfig{Path: ""},
		Server: ServerConfig{
			Port:                  "8080",
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
			IdleTimeout:           60 * time.Second,
			CORSOrigins:           []string{"*"},
			InviteAcceptPerMinute: 10,
			RegisterPerMinute:     5,
		},
		Auth: AuthConfig{
			AccessTokenDuration: 24 * time.Hour,
		},
		Collection: CollectionConfig{
			PageSize:         24,
			FullScanBatch:    500,
			JoinedSortPaging: false,
			SessionIdleTTL:   30 * time.Minute,
		},
		Metadata: MetadataConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Invites: InviteConfig{
			DefaultMaxUses: 1,
			DefaultTTL:     168 * time.Hour,
		},
	}
}

// envKeys maps environment variables onto config keys. Unlisted variables are ignored.
var envKeys = map[string]string{
	"env":                           "app.environment",
	"log_level":                     "logger.level",
	"database_path":                 "database.path",
	"server_port":                   "server.port",
	"server_read_timeout":           "server.read_timeout",
	"server_write_timeout":          "server.write_timeout",
	"server_idle_timeout":           "server.idle_timeout",
	"cors_origins":                  "server.cors_origins",
	"invite_accept_per_minute":      "server.invite_accept_per_minute",
	"register_per_minute":           "server.register_per_minute",
	"auth_token_key":                "auth.token_key",
	"access_token_duration":         "auth.access_token_duration",
	"collection_page_size":          "collection.page_size",
	"collection_full_scan_batch":    "collection.full_scan_batch",
	"collection_joined_sort_paging": "collection.joined_sort_paging",
	"collection_session_idle_ttl":   "collection.session_idle_ttl",
	"metadata_provider_url":         "metadata.provider_url",
	"metadata_timeout":              "metadata.timeout",
	"metadata_requests_per_second":  "metadata.requests_per_second",
	"metadata_burst":                "metadata.burst",
	"metadata_breaker_failures":     "metadata.breaker_failures",
	"metadata_breaker_timeout":      "metadata.breaker_timeout",
	"invite_default_max_uses":       "invites.default_max_uses",
	"invite_default_ttl":            "invites.default_ttl",
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"env":                   "app.environment",
	"log-level":             "logger.level",
	"db-path":               "database.path",
	"port":                  "server.port",
	"read-timeout":          "server.read_timeout",
	"write-timeout":         "server.write_timeout",
	"idle-timeout":          "server.idle_timeout",
	"access-token-duration": "auth.access_token_duration",
	"page-size":             "collection.page_size",
	"metadata-url":          "metadata.provider_url",
}

var sliceKeys = []string{"server.cors_origins"}

// LoadConfig loads configuration with precedence, highest first:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file.
// 4. YAML file named by -config or CONFIG_PATH.
// 5. Default values.
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("watchlog", flag.ContinueOnError)
	envFile := fs.String("env-file", ".env", "Path to .env file")
	configFile := fs.String("config", "", "Path to a YAML config file")
	values := make(map[string]*string, len(flagKeys))
	for name, key := range flagKeys {
		values[name] = fs.String(name, "", "Overrides "+key)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env files are fine.
	if err := loadEnvFile(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := *configFile
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for name, key := range flagKeys {
		if v := *values[name]; v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", key, err)
			}
		}
	}

	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.expandDatabasePath(); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}
	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}
	if c.Collection.PageSize < 1 || c.Collection.PageSize > 200 {
		return fmt.Errorf("collection page size %d out of range 1..200", c.Collection.PageSize)
	}
	if c.Collection.FullScanBatch < 1 {
		return errors.New("collection full scan batch must be positive")
	}
	if c.Invites.DefaultMaxUses < 1 {
		return errors.New("invite default max uses must be at least 1")
	}
	if c.Invites.DefaultTTL <= 0 {
		return errors.New("invite default ttl must be positive")
	}

	if c.Metadata.ProviderURL != "" {
		u, err := url.Parse(c.Metadata.ProviderURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid metadata provider url: %q", c.Metadata.ProviderURL)
		}
		if c.Metadata.RequestsPerSecond <= 0 {
			return errors.New("metadata requests per second must be positive")
		}
	}
	return nil
}

// MetadataEnabled reports whether a provider is configured.
func (c *Config) MetadataEnabled() bool {
	return c.Metadata.ProviderURL != ""
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDatabasePath defaults the database to ~/Watchlog/watchlog.db.
func (c *Config) expandDatabasePath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Watchlog", "watchlog.db")

	expanded, err := expandPath(c.Database.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Database.Path = expanded
	return nil
}

// envValue maps a variable onto its config key. Unknown and empty variables are skipped.
func envValue(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	return envKeys[strings.ToLower(name)], value
}

// splitLists turns comma-separated strings from env or flags into slices.
func splitLists(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for p := range strings.SplitSeq(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment variables win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
