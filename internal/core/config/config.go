// Package config provides configuration management for cratedigger services.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/solatis/cratedigger/internal/types"
)

// ServiceConfig holds configuration for the report server and CLI.
type ServiceConfig struct {
	Server   ServerConfig
	Engine   EngineConfig
	Database DatabaseConfig
}

// ServerConfig holds configuration for the gRPC report service.
type ServerConfig struct {
	Host                 string
	Port                 int
	RequestTimeout       time.Duration
	MaxRequestsPerSecond float64
	MaxRequestBytes      int
}

// EngineConfig holds report engine defaults. Per-request flags override them.
type EngineConfig struct {
	Workers               int // 0 = GOMAXPROCS
	IncludeZeroCandidates bool
	MaxCandidates         int // 0 = unlimited
}

// DatabaseConfig locates the catalog database.
// Accepted forms: sqlite:///abs/path.db, sqlite://rel/path.db, postgres://...
type DatabaseConfig struct {
	URL string
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Host:                 "127.0.0.1",
			Port:                 50061,
			RequestTimeout:       60 * time.Second,
			MaxRequestsPerSecond: 10,
			MaxRequestBytes:      64 << 20,
		},
		Engine: EngineConfig{
			IncludeZeroCandidates: true,
		},
	}
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Policy converts engine defaults into report policy flags.
func (e EngineConfig) Policy() types.Policy {
	return types.Policy{
		ExcludeZeroCandidates: !e.IncludeZeroCandidates,
		MaxCandidates:         e.MaxCandidates,
	}
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *ServiceConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxRequestsPerSecond <= 0 {
		return fmt.Errorf("max_requests_per_second must be positive, got %v", cfg.Server.MaxRequestsPerSecond)
	}
	if cfg.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive, got %d", cfg.Server.MaxRequestBytes)
	}
	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.MaxCandidates < 0 {
		return fmt.Errorf("max_candidates must not be negative, got %d", cfg.Engine.MaxCandidates)
	}
	return nil
}
