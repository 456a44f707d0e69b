package config

import (
	"strings"
	"testing"
	"time"
)

// setRequired sets the minimum environment for Load to succeed.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.GatewayHeartbeatInterval != 45*time.Second {
		t.Errorf("GatewayHeartbeatInterval = %v, want 45s", cfg.GatewayHeartbeatInterval)
	}
	if cfg.GatewaySendQueueSize != 256 {
		t.Errorf("GatewaySendQueueSize = %d, want 256", cfg.GatewaySendQueueSize)
	}
	if cfg.MaxMessageLength != 4096 {
		t.Errorf("MaxMessageLength = %d, want 4096", cfg.MaxMessageLength)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true for default env")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded without JWT_SECRET")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("error %q does not mention JWT_SECRET", err)
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a short JWT_SECRET")
	}
}

func TestLoad_CollectsAllParseErrors(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("DATABASE_MAX_CONNS", "many")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with invalid integers")
	}
	for _, key := range []string{"SERVER_PORT", "DATABASE_MAX_CONNS"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoad_SnowflakeBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("SNOWFLAKE_MACHINE_ID", "32")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted an out-of-range machine ID")
	}
}

func TestLoad_GatewayOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_HEARTBEAT_INTERVAL", "30s")
	t.Setenv("GATEWAY_SEND_QUEUE_SIZE", "64")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GatewayHeartbeatInterval != 30*time.Second {
		t.Errorf("GatewayHeartbeatInterval = %v, want 30s", cfg.GatewayHeartbeatInterval)
	}
	if cfg.GatewaySendQueueSize != 64 {
		t.Errorf("GatewaySendQueueSize = %d, want 64", cfg.GatewaySendQueueSize)
	}
}

func TestBodyLimitBytes(t *testing.T) {
	t.Parallel()

	cfg := &Config{MaxUploadSizeMB: 100}
	if got := cfg.BodyLimitBytes(); got != 101*1024*1024 {
		t.Errorf("BodyLimitBytes() = %d, want %d", got, 101*1024*1024)
	}
}
