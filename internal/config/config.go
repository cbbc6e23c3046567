// Package config carries the static bootstrap configuration (file + env) and
// the dynamic runtime settings served from the config document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the static configuration loaded at startup. Behavior knobs that
// can change at runtime live in the config document instead (see Settings);
// their values here only seed the document defaults.
type Config struct {
	// Server settings
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Debug   bool   `yaml:"debug" json:"debug"`
	LogFile string `yaml:"log_file" json:"log_file"`

	// Auth settings
	APIKeys  []string `yaml:"api_keys" json:"api_keys"`
	AdminKey string   `yaml:"admin_key" json:"admin_key"`

	// Storage settings
	StorageBackend string `yaml:"storage_backend" json:"storage_backend"`
	StorageBaseDir string `yaml:"storage_base_dir" json:"storage_base_dir"`
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword  string `yaml:"redis_password" json:"redis_password"`
	RedisDB        int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix" json:"redis_prefix"`
	MongoDBURI     string `yaml:"mongodb_uri" json:"mongodb_uri"`
	MongoDatabase  string `yaml:"mongodb_database" json:"mongodb_database"`
	PostgresDSN    string `yaml:"postgres_dsn" json:"postgres_dsn"`

	// Upstream settings
	CodeAssistEndpoint string `yaml:"code_assist_endpoint" json:"code_assist_endpoint"`
	ProxyURL           string `yaml:"proxy_url" json:"proxy_url"`
	OAuthClientID      string `yaml:"oauth_client_id" json:"oauth_client_id"`
	OAuthClientSecret  string `yaml:"oauth_client_secret" json:"oauth_client_secret"`
	OAuthRedirectURL   string `yaml:"oauth_redirect_url" json:"oauth_redirect_url"`

	// Behavior defaults (seed values for the config document)
	CallsPerRotation   int   `yaml:"calls_per_rotation" json:"calls_per_rotation"`
	HTTPTimeoutSec     int   `yaml:"http_timeout_sec" json:"http_timeout_sec"`
	Retry429Enabled    *bool `yaml:"retry_429_enabled" json:"retry_429_enabled"`
	Retry429MaxRetries int   `yaml:"retry_429_max_retries" json:"retry_429_max_retries"`
	Retry429IntervalMs int   `yaml:"retry_429_interval_ms" json:"retry_429_interval_ms"`
	AutoBanEnabled     *bool `yaml:"auto_ban_enabled" json:"auto_ban_enabled"`
	AutoBanErrorCodes  []int `yaml:"auto_ban_error_codes" json:"auto_ban_error_codes"`

	// Rate limiting
	RateLimitEnabled bool `yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRPS     int  `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst   int  `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// Load reads the configuration file (YAML or JSON), applies environment
// overrides and defaults. A missing path falls back to well-known locations;
// no file at all yields a default config.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, loc := range []string{
			"config.yaml",
			"config.yml",
			"config.json",
			filepath.Join(os.Getenv("HOME"), ".gclipool", "config.yaml"),
			"/etc/gclipool/config.yaml",
		} {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("parse config file (tried YAML and JSON)")
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 7861
	}
	if c.StorageBackend == "" {
		c.StorageBackend = "file"
	}
	if c.StorageBaseDir == "" {
		c.StorageBaseDir = "./data"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "gclipool"
	}
	if c.CodeAssistEndpoint == "" {
		c.CodeAssistEndpoint = "https://cloudcode-pa.googleapis.com"
	}
	if c.RateLimitRPS == 0 {
		c.RateLimitRPS = 20
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 40
	}
}
