package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// CMSConfig holds the connection settings for the headless CMS.
type CMSConfig struct {
	// BaseURL is the REST API root (e.g., https://cms.example.com/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Origin is prefixed to relative media URLs.
	Origin string `mapstructure:"origin" yaml:"origin"`

	// PublicToken is a read-only API token used for anonymous listings.
	PublicToken string `mapstructure:"public_token" yaml:"public_token"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the HTTP client timeout.
func (c CMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// MediaConfig holds media rendering settings.
type MediaConfig struct {
	Placeholder string `mapstructure:"placeholder" yaml:"placeholder"`
}

// RolesConfig names the CMS roles with elevated privileges.
type RolesConfig struct {
	// Staff receive fan-out notifications when content needs review.
	Staff []string `mapstructure:"staff" yaml:"staff"`

	// Moderators may approve, reject and delete any work item.
	Moderators []string `mapstructure:"moderators" yaml:"moderators"`
}

// InboxConfig holds notification polling settings.
type InboxConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	PageSize        int `mapstructure:"page_size" yaml:"page_size"`
}

// CacheConfig locates the local read cache.
type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File receives log output. Empty means stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// OAuthProvider holds client credentials for one identity provider.
type OAuthProvider struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// OAuthConfig holds the identity providers and the proxy listen address.
type OAuthConfig struct {
	Google    OAuthProvider `mapstructure:"google" yaml:"google"`
	Discord   OAuthProvider `mapstructure:"discord" yaml:"discord"`
	ProxyAddr string        `mapstructure:"proxy_addr" yaml:"proxy_addr"`

	// PublicURL is the proxy's externally visible root, used to build
	// callback URLs. Empty means the request's own host.
	PublicURL string `mapstructure:"public_url" yaml:"public_url"`

	// AllowedOrigins are the front-end origins allowed to call the proxy.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	CMS   CMSConfig   `mapstructure:"cms" yaml:"cms"`
	Media MediaConfig `mapstructure:"media" yaml:"media"`
	Roles RolesConfig `mapstructure:"roles" yaml:"roles"`

	// Fallbacks maps collection -> field -> placeholder value used when
	// the CMS omits the field.
	Fallbacks map[string]map[string]any `mapstructure:"fallbacks" yaml:"fallbacks"`

	Inbox InboxConfig `mapstructure:"inbox" yaml:"inbox"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	OAuth OAuthConfig `mapstructure:"oauth" yaml:"oauth"`
}

// FallbacksFor returns the configured fallbacks for a collection.
func (c *AppConfig) FallbacksFor(collection string) map[string]any {
	if c == nil || c.Fallbacks == nil {
		return nil
	}
	return c.Fallbacks[collection]
}

// envBindings maps config keys to the environment variables that can set
// them, in priority order.
var envBindings = map[string][]string{
	"cms.base_url":                {"MALHARRO_API_URL", "NEXT_PUBLIC_API_URL"},
	"cms.origin":                  {"MALHARRO_URL", "NEXT_PUBLIC_URL"},
	"cms.public_token":            {"MALHARRO_API_TOKEN", "NEXT_PUBLIC_API_TOKEN"},
	"oauth.google.client_id":      {"NEXT_PUBLIC_CLIENT_ID_GOOGLE"},
	"oauth.google.client_secret":  {"GOOGLE_CLIENT_SECRET"},
	"oauth.discord.client_id":     {"NEXT_PUBLIC_DISCORD_CLIENT_ID"},
	"oauth.discord.client_secret": {"DISCORD_CLIENT_SECRET"},
	"log.level":                   {"MALHARRO_LOG_LEVEL"},
	"oauth.public_url":            {"MALHARRO_PROXY_URL"},
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/malharro/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "malharro", "config.yaml")
}

// DefaultCachePath returns the default location of the SQLite read cache.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cache.db")
	}
	return filepath.Join(home, ".config", "malharro", "cache.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		CMS: CMSConfig{
			Origin:     "https://proyectomalharro.onrender.com",
			TimeoutSec: 30,
		},
		Media: MediaConfig{Placeholder: "/img/placeholder.jpg"},
		Roles: RolesConfig{
			Staff:      []string{RoleAdmin, RoleSuperAdmin, RoleTeacher},
			Moderators: []string{RoleAdmin, RoleSuperAdmin, RoleTeacher},
		},
		Fallbacks: map[string]map[string]any{},
		Inbox: InboxConfig{
			PollIntervalSec: 120,
			PageSize:        200,
		},
		Cache: CacheConfig{Path: DefaultCachePath()},
		Log:   LogConfig{Level: "info"},
		OAuth: OAuthConfig{ProxyAddr: ":8787"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first so its variables
// can override file values. If the file does not exist, defaults are used.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("cms.origin", def.CMS.Origin)
	v.SetDefault("cms.timeout_sec", def.CMS.TimeoutSec)
	v.SetDefault("media.placeholder", def.Media.Placeholder)
	v.SetDefault("roles.staff", def.Roles.Staff)
	v.SetDefault("roles.moderators", def.Roles.Moderators)
	v.SetDefault("inbox.poll_interval_sec", def.Inbox.PollIntervalSec)
	v.SetDefault("inbox.page_size", def.Inbox.PageSize)
	v.SetDefault("cache.path", def.Cache.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("oauth.proxy_addr", def.OAuth.ProxyAddr)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Inbox.PollIntervalSec <= 0 {
		cfg.Inbox.PollIntervalSec = def.Inbox.PollIntervalSec
	}
	if cfg.Inbox.PageSize <= 0 {
		cfg.Inbox.PageSize = def.Inbox.PageSize
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = map[string]map[string]any{}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("cms", cfg.CMS)
	v.Set("media", cfg.Media)
	v.Set("roles", cfg.Roles)
	v.Set("fallbacks", cfg.Fallbacks)
	v.Set("inbox", cfg.Inbox)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("oauth", cfg.OAuth)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
