package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Database.Path = "/data/watchlog.db"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true}, // case insensitive
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero page size", func(c *Config) { c.Collection.PageSize = 0 }},
		{"huge page size", func(c *Config) { c.Collection.PageSize = 1000 }},
		{"zero full scan batch", func(c *Config) { c.Collection.FullScanBatch = 0 }},
		{"zero invite uses", func(c *Config) { c.Invites.DefaultMaxUses = 0 }},
		{"negative invite ttl", func(c *Config) { c.Invites.DefaultTTL = -time.Hour }},
		{"zero token duration", func(c *Config) { c.Auth.AccessTokenDuration = 0 }},
		{"provider without scheme", func(c *Config) { c.Metadata.ProviderURL = "meta.example.com" }},
		{"provider with zero rate", func(c *Config) {
			c.Metadata.ProviderURL = "https://meta.example.com"
			c.Metadata.RequestsPerSecond = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24, cfg.Collection.PageSize)
	assert.Equal(t, 500, cfg.Collection.FullScanBatch)
	assert.Equal(t, 168*time.Hour, cfg.Invites.DefaultTTL)
	assert.Equal(t, 1, cfg.Invites.DefaultMaxUses)
	assert.True(t, filepath.IsAbs(cfg.Database.Path))
	assert.False(t, cfg.MetadataEnabled())
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yamlPath := filepath.Join(dir, "watchlog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
collection:
  page_size: 30
  full_scan_batch: 100
server:
  port: "7000"
metadata:
  provider_url: https://meta.example.com/api
`), 0o600))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("# comment\nCOLLECTION_PAGE_SIZE=40\nLOG_LEVEL=\"debug\"\n"), 0o600))

	// Registered so the values the .env file sets are restored afterwards.
	t.Setenv("COLLECTION_PAGE_SIZE", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SERVER_PORT", "7100")
	t.Setenv("INVITE_DEFAULT_TTL", "48h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadConfig([]string{"-config", yamlPath, "-env-file", envPath, "-port", "7200", "-db-path", "db/test.db"})
	require.NoError(t, err)

	assert.Equal(t, "7200", cfg.Server.Port, "flags beat env")
	assert.Equal(t, 40, cfg.Collection.PageSize, ".env beats the YAML file")
	assert.Equal(t, 100, cfg.Collection.FullScanBatch, "YAML beats defaults")
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 48*time.Hour, cfg.Invites.DefaultTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, filepath.Join(dir, "db", "test.db"), cfg.Database.Path)
	assert.True(t, cfg.MetadataEnabled())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "qa")

	_, err := LoadConfig(nil)
	assert.Error(t, err)
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VALID=1\nnot a pair\n"), 0o600))
	t.Setenv("VALID", "")

	err := loadEnvFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("~/watchlog/db", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "watchlog", "db"), got)

	got, err = expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)
}
