package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// ErrCredentialsInConfig rejects database passwords in config files.
var ErrCredentialsInConfig = errors.New("database credentials not allowed in config files (use CD_DATABASE_URL environment variable)")

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServiceConfig
	d := DefaultServiceConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_requests_per_second", d.Server.MaxRequestsPerSecond)
	v.SetDefault("server.max_request_bytes", d.Server.MaxRequestBytes)
	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.include_zero_candidates", d.Engine.IncludeZeroCandidates)
	v.SetDefault("engine.max_candidates", d.Engine.MaxCandidates)
	v.SetDefault("database.url", "")

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Checked before environment binding so only file values are inspected.
		if err := validateNoCredentialsInConfig(v); err != nil {
			return nil, err
		}
	}

	// Bind environment variables with CD_ prefix
	v.SetEnvPrefix("CD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &ServiceConfig{
		Server: ServerConfig{
			Host:                 v.GetString("server.host"),
			Port:                 v.GetInt("server.port"),
			RequestTimeout:       v.GetDuration("server.request_timeout"),
			MaxRequestsPerSecond: v.GetFloat64("server.max_requests_per_second"),
			MaxRequestBytes:      v.GetInt("server.max_request_bytes"),
		},
		Engine: EngineConfig{
			Workers:               v.GetInt("engine.workers"),
			IncludeZeroCandidates: v.GetBool("engine.include_zero_candidates"),
			MaxCandidates:         v.GetInt("engine.max_candidates"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoCredentialsInConfig enforces environment-only secrets (12-factor principle).
func validateNoCredentialsInConfig(v *viper.Viper) error {
	raw := v.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid database.url: %w", err)
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return ErrCredentialsInConfig
	}
	return nil
}
