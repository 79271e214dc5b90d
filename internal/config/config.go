// Package config loads mirror settings from a YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ChangeDetectionDay   = "day"
	ChangeDetectionExact = "exact"

	defaultWindow         = 14 * 24 * time.Hour
	defaultPageSize       = 1000
	defaultThreadPageSize = 100
	defaultRemoteTimeout  = 30 * time.Second
	defaultWorkers        = 4
)

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Log       LogConfig        `yaml:"log"`
	Sync      SyncConfig       `yaml:"sync"`
	Providers []ProviderConfig `yaml:"providers"`
}

type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   string `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SyncConfig tunes the sync engine. Durations use Go syntax ("336h", "30s").
type SyncConfig struct {
	Window          Duration `yaml:"window"`
	Interval        Duration `yaml:"interval"`
	RemoteTimeout   Duration `yaml:"remote_timeout"`
	PageSize        int      `yaml:"page_size"`
	ThreadPageSize  int      `yaml:"thread_page_size"`
	Workers         int      `yaml:"workers"`
	ChangeDetection string   `yaml:"change_detection"`
}

// ProviderConfig describes one OAuth provider. Empty fields fall back to the
// provider's built-in defaults.
type ProviderConfig struct {
	ID           string   `yaml:"id"`
	Enabled      *bool    `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	BaseURL      string   `yaml:"base_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	Workspace    string   `yaml:"workspace"`
	Scopes       []string `yaml:"scopes"`
	BaseScopes   []string `yaml:"base_scopes"`
}

// IsEnabled defaults to true when unset.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Duration wraps time.Duration for YAML strings.
type Duration time.Duration

// UnmarshalYAML accepts "30s"-style strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the time.Duration value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load resolves the config file, parses it and applies env overrides.
// A missing file is not an error.
func Load() (*Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile parses path (empty means defaults only) and applies env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Provider returns the provider entry by ID.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	id = normalizeProviderID(id)
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Addr is host:port for the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("MIRROR_CONFIG")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/mirror.yaml",
		"/etc/mirror/mirror.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "mirror", "mirror.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.APIKey, "MIRROR_API_KEY")
	setString(&cfg.Database.Path, "MIRROR_DB_PATH")
	setString(&cfg.Log.Level, "MIRROR_LOG_LEVEL")
	setString(&cfg.Sync.ChangeDetection, "MIRROR_CHANGE_DETECTION")
	setDuration(&cfg.Sync.Window, "MIRROR_SYNC_WINDOW")
	setDuration(&cfg.Sync.Interval, "MIRROR_SYNC_INTERVAL")
	setDuration(&cfg.Sync.RemoteTimeout, "MIRROR_REMOTE_TIMEOUT")
	setInt(&cfg.Sync.Workers, "MIRROR_SYNC_WORKERS")

	for i := range cfg.Providers {
		cfg.Providers[i].ID = normalizeProviderID(cfg.Providers[i].ID)
	}
	// Built-in providers exist even without a config file so env alone is enough.
	for _, id := range []string{"google", "asana"} {
		if _, ok := cfg.Provider(id); !ok {
			cfg.Providers = append(cfg.Providers, ProviderConfig{ID: id})
		}
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		setString(&p.ClientID, providerEnvName(p.ID, "CLIENT_ID"))
		setString(&p.ClientSecret, providerEnvName(p.ID, "CLIENT_SECRET"))
		setString(&p.RedirectURL, providerEnvName(p.ID, "REDIRECT_URL"))
		setString(&p.BaseURL, providerEnvName(p.ID, "BASE_URL"))
		setString(&p.Workspace, providerEnvName(p.ID, "WORKSPACE"))
		if p.ID == "google" {
			// Legacy variable names.
			setStringIfEmpty(&p.ClientID, "GOOGLE_CLIENT_ID")
			setStringIfEmpty(&p.ClientSecret, "GOOGLE_CLIENT_SECRET")
			setStringIfEmpty(&p.RedirectURL, "GOOGLE_REDIRECT_URI")
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "mirror.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Sync.Window <= 0 {
		cfg.Sync.Window = Duration(defaultWindow)
	}
	if cfg.Sync.RemoteTimeout <= 0 {
		cfg.Sync.RemoteTimeout = Duration(defaultRemoteTimeout)
	}
	if cfg.Sync.PageSize <= 0 {
		cfg.Sync.PageSize = defaultPageSize
	}
	if cfg.Sync.ThreadPageSize <= 0 {
		cfg.Sync.ThreadPageSize = defaultThreadPageSize
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = defaultWorkers
	}
	cfg.Sync.ChangeDetection = strings.ToLower(strings.TrimSpace(cfg.Sync.ChangeDetection))
	if cfg.Sync.ChangeDetection == "" {
		cfg.Sync.ChangeDetection = ChangeDetectionDay
	}
}

func (c *Config) validate() error {
	switch c.Sync.ChangeDetection {
	case ChangeDetectionDay, ChangeDetectionExact:
	default:
		return fmt.Errorf("invalid sync.change_detection %q: want %q or %q",
			c.Sync.ChangeDetection, ChangeDetectionDay, ChangeDetectionExact)
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if !providerIDRegexp.MatchString(p.ID) {
			return fmt.Errorf("invalid provider id %q", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setStringIfEmpty(dst *string, env string) {
	if *dst == "" {
		setString(dst, env)
	}
}

func setDuration(dst *Duration, env string) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed >= 0 {
		*dst = Duration(parsed)
	}
}

func setInt(dst *int, env string) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		*dst = parsed
	}
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func providerEnvName(id, suffix string) string {
	upper := strings.ToUpper(id)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	upper = replacer.Replace(upper)
	return fmt.Sprintf("MIRROR_%s_%s", upper, suffix)
}
