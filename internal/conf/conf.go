// Package conf loads the bot's configuration: connection and admission
// settings from environment variables, per-module settings from an
// optional YAML file.
package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// List is a comma-separated list option. Entries are trimmed and empty
// entries dropped, so "a, b ,c" and "a,b,c" parse identically.
type List []string

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (l *List) UnmarshalText(text []byte) error {
	*l = nil
	for _, entry := range strings.Split(string(text), ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			*l = append(*l, entry)
		}
	}
	return nil
}

// Config is the process-wide configuration, populated once at startup
// and read-only afterwards.
type Config struct {
	// HomeserverURL is the Matrix homeserver base URL.
	HomeserverURL string `env:"MATRIX_SERVER_URL"`
	// AccessToken authenticates the bot's Matrix session.
	AccessToken string `env:"MATRIX_ACCESS_TOKEN"`
	// UserID is the bot's own fully-qualified user ID.
	UserID string `env:"MATRIX_USER_ID"`

	// DatabasePath locates the group store. Defaults to
	// ~/.roombot/groups.db.
	DatabasePath string `env:"DATABASE_PATH"`

	// ListenRooms are symbolic room references joined unconditionally
	// at startup.
	ListenRooms List `env:"LISTEN_ROOMS"`
	// AllowedInviters restricts whose invites are accepted. Empty
	// means open invite policy, not an error.
	AllowedInviters List `env:"ALLOWED_INVITERS"`
	// WhitelistedRooms, when non-empty, is the only set of rooms the
	// bot will join. Takes precedence over BlacklistedRooms.
	WhitelistedRooms List `env:"WHITELISTED_ROOM_IDS"`
	// BlacklistedRooms are rooms the bot refuses to join. Ignored when
	// WhitelistedRooms is non-empty.
	BlacklistedRooms List `env:"BLACKLISTED_ROOM_IDS"`

	// ModulesConfigPath locates the optional per-module YAML file.
	ModulesConfigPath string `env:"MODULES_CONFIG_PATH"`

	Debug bool `env:"DEBUG"`
}

// LoadFromEnv loads configuration from environment variables and fills
// in defaults.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabasePath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.DatabasePath = filepath.Join(homeDir, ".roombot", "groups.db")
	}
	return &cfg, nil
}

// Validate checks that the connection settings are present.
func (c *Config) Validate() error {
	if c.HomeserverURL == "" {
		return &ConfigError{Field: "MATRIX_SERVER_URL", Message: "required"}
	}
	if c.AccessToken == "" {
		return &ConfigError{Field: "MATRIX_ACCESS_TOKEN", Message: "required"}
	}
	if c.UserID == "" {
		return &ConfigError{Field: "MATRIX_USER_ID", Message: "required"}
	}
	return nil
}

// ConfigError reports an invalid or missing configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
