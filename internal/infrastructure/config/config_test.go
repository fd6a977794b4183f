package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 4100
discovery:
  enabled: true
  hostname: "sous-edge.local"
  service: "_sous-api._tcp.local"
pairing:
  code_ttl_minutes: 10
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.API.Port != 4100 {
		t.Errorf("API.Port = %d, want 4100", cfg.API.Port)
	}

	if cfg.Discovery.Hostname != "sous-edge.local" {
		t.Errorf("Discovery.Hostname = %q, want %q", cfg.Discovery.Hostname, "sous-edge.local")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	// No JWT secret supplied anywhere
	content := `
database:
  path: "/tmp/test.db"
api:
  port: 4000
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing JWT secret, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero pairing code TTL",
			mutate:  func(c *Config) { c.Pairing.CodeTTLMinutes = 0 },
			wantErr: true,
		},
		{
			name:    "zero heartbeat interval",
			mutate:  func(c *Config) { c.Heartbeat.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "zero telemetry window",
			mutate:  func(c *Config) { c.Telemetry.WindowSeconds = 0 },
			wantErr: true,
		},
		{
			name: "discovery enabled without hostname",
			mutate: func(c *Config) {
				c.Discovery.Enabled = true
				c.Discovery.Hostname = ""
			},
			wantErr: true,
		},
		{
			name: "discovery disabled without hostname is fine",
			mutate: func(c *Config) {
				c.Discovery.Enabled = false
				c.Discovery.Hostname = ""
			},
			wantErr: false,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestConfig_DerivedDurations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.PairingCodeTTL().Minutes(); got != 10 {
		t.Errorf("PairingCodeTTL() = %v minutes, want 10", got)
	}

	if got := cfg.TelemetryWindow().Seconds(); got != 60 {
		t.Errorf("TelemetryWindow() = %v seconds, want 60", got)
	}

	// 30s interval x 3 missed beats
	if got := cfg.OfflineCutoff().Seconds(); got != 90 {
		t.Errorf("OfflineCutoff() = %v seconds, want 90", got)
	}
}

func TestConfig_DiscoveryPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Port = 4000

	if got := cfg.DiscoveryPort(); got != 4000 {
		t.Errorf("DiscoveryPort() = %d, want API port 4000", got)
	}

	cfg.Discovery.Port = 8443
	if got := cfg.DiscoveryPort(); got != 8443 {
		t.Errorf("DiscoveryPort() = %d, want explicit 8443", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("SOUSEDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SOUSEDGE_API_HOST", "192.168.1.1")
	t.Setenv("SOUSEDGE_API_PORT", "4200")
	t.Setenv("SOUSEDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SOUSEDGE_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.API.Port != 4200 {
		t.Errorf("API.Port = %d, want 4200", cfg.API.Port)
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.API.Port != 4000 {
		t.Errorf("defaultConfig API.Port = %d, want 4000", cfg.API.Port)
	}

	if cfg.Discovery.Hostname != "sous-edge.local" {
		t.Errorf("defaultConfig Discovery.Hostname = %q, want %q", cfg.Discovery.Hostname, "sous-edge.local")
	}

	if cfg.Discovery.RecordTTL != 300 {
		t.Errorf("defaultConfig Discovery.RecordTTL = %d, want 300", cfg.Discovery.RecordTTL)
	}

	if cfg.Pairing.CodeTTLMinutes != 10 {
		t.Errorf("defaultConfig Pairing.CodeTTLMinutes = %d, want 10", cfg.Pairing.CodeTTLMinutes)
	}
}
