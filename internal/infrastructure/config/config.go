package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Sous Edge Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains realtime hub settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// DiscoveryConfig contains mDNS discovery responder settings.
//
// Hostname and Service are the reserved names hardware clients query for.
// Port is the port advertised in the SRV record; when zero, the API port
// is advertised instead.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	Service   string `yaml:"service"`
	Port      int    `yaml:"port"`
	RecordTTL int    `yaml:"record_ttl"`
}

// PairingConfig contains pairing code settings.
type PairingConfig struct {
	// CodeTTLMinutes is how long an issued pairing code remains valid.
	CodeTTLMinutes int `yaml:"code_ttl_minutes"`
}

// HeartbeatConfig contains device liveness settings.
type HeartbeatConfig struct {
	// Interval is the heartbeat cadence expected from hardware (seconds).
	Interval int `yaml:"interval"`

	// OfflineAfter is how many missed intervals before a device is swept offline.
	OfflineAfter int `yaml:"offline_after"`

	// SweepInterval is how often the liveness sweeper runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`
}

// TelemetryConfig contains inbound telemetry throttle settings.
type TelemetryConfig struct {
	// WindowSeconds is the suppression window per device/metric pair.
	WindowSeconds int `yaml:"window_seconds"`

	// SweepInterval is how often stale throttle entries are evicted (seconds).
	SweepInterval int `yaml:"sweep_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings for the telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings. Token issuance lives in the
// identity service; this core only verifies signatures and claims.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SOUSEDGE_SECTION_KEY
// For example: SOUSEDGE_DATABASE_PATH, SOUSEDGE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 4000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 256,
		},
		Database: DatabaseConfig{
			Path:        "./data/sousedge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Discovery: DiscoveryConfig{
			Enabled:   true,
			Hostname:  "sous-edge.local",
			Service:   "_sous-api._tcp.local",
			RecordTTL: 300,
		},
		Pairing: PairingConfig{
			CodeTTLMinutes: 10,
		},
		Heartbeat: HeartbeatConfig{
			Interval:      30,
			OfflineAfter:  3,
			SweepInterval: 30,
		},
		Telemetry: TelemetryConfig{
			WindowSeconds: 60,
			SweepInterval: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOUSEDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("SOUSEDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SOUSEDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("SOUSEDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Discovery
	if v := os.Getenv("SOUSEDGE_DISCOVERY_ENABLED"); v != "" {
		cfg.Discovery.Enabled = v == "true" || v == "1"
	}

	// InfluxDB
	if v := os.Getenv("SOUSEDGE_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SOUSEDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("SOUSEDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Pairing validation
	if c.Pairing.CodeTTLMinutes < 1 {
		errs = append(errs, "pairing.code_ttl_minutes must be at least 1")
	}

	// Heartbeat validation
	if c.Heartbeat.Interval < 1 {
		errs = append(errs, "heartbeat.interval must be at least 1")
	}
	if c.Heartbeat.OfflineAfter < 1 {
		errs = append(errs, "heartbeat.offline_after must be at least 1")
	}

	// Telemetry validation
	if c.Telemetry.WindowSeconds < 1 {
		errs = append(errs, "telemetry.window_seconds must be at least 1")
	}

	// Discovery validation
	if c.Discovery.Enabled {
		if c.Discovery.Hostname == "" {
			errs = append(errs, "discovery.hostname is required when discovery is enabled")
		}
		if c.Discovery.Service == "" {
			errs = append(errs, "discovery.service is required when discovery is enabled")
		}
	}

	// Security validation - JWT secret is REQUIRED
	// Pairing binds anonymous terminals to a tenant. A forgeable bearer
	// token would let an attacker pair devices into arbitrary organisations.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SOUSEDGE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PairingCodeTTL returns the pairing code lifetime as a Duration.
func (c *Config) PairingCodeTTL() time.Duration {
	return time.Duration(c.Pairing.CodeTTLMinutes) * time.Minute
}

// TelemetryWindow returns the telemetry suppression window as a Duration.
func (c *Config) TelemetryWindow() time.Duration {
	return time.Duration(c.Telemetry.WindowSeconds) * time.Second
}

// OfflineCutoff returns how long a device may go without a heartbeat
// before the liveness sweeper marks it offline.
func (c *Config) OfflineCutoff() time.Duration {
	return time.Duration(c.Heartbeat.Interval*c.Heartbeat.OfflineAfter) * time.Second
}

// DiscoveryPort returns the port advertised in the SRV record.
func (c *Config) DiscoveryPort() int {
	if c.Discovery.Port > 0 {
		return c.Discovery.Port
	}
	return c.API.Port
}
