package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.Bridge.Kind != BridgeNone {
		t.Errorf("bridge kind = %q, want %q", cfg.Bridge.Kind, BridgeNone)
	}
	if cfg.Bridge.Channel != "notifications" {
		t.Errorf("bridge channel = %q, want %q", cfg.Bridge.Channel, "notifications")
	}
	if cfg.PushEnabled() || cfg.EmailEnabled() {
		t.Error("push and email should be off by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONEA_PORT", "9090")
	t.Setenv("CONEA_LOG_LEVEL", "debug")
	t.Setenv("CONEA_BRIDGE_KIND", "redis")
	t.Setenv("CONEA_REDIS_ADDR", "redis:6379")
	t.Setenv("CONEA_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("CONEA_VAPID_PRIVATE_KEY", "priv")
	t.Setenv("CONEA_POSTMARK_TOKEN", "tok")
	t.Setenv("CONEA_DIGEST_TO", "ops@conea.test")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Bridge.Kind != BridgeRedis {
		t.Errorf("bridge kind = %q, want %q", cfg.Bridge.Kind, BridgeRedis)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q, want %q", cfg.Redis.Addr, "redis:6379")
	}
	if !cfg.PushEnabled() {
		t.Error("expected push enabled")
	}
	if !cfg.EmailEnabled() {
		t.Error("expected email enabled")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "port: \"7000\"\nbridge:\n  kind: websocket\n  url: ws://upstream/feed\n  channel: alerts\n"
	if err := os.WriteFile(filepath.Join(dir, "conea.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7000" {
		t.Errorf("port = %q, want %q", cfg.Port, "7000")
	}
	if cfg.Bridge.URL != "ws://upstream/feed" || cfg.Bridge.Channel != "alerts" {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
}

func TestLoadLocalBridge(t *testing.T) {
	t.Setenv("CONEA_BRIDGE_KIND", "Local")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bridge.Kind != BridgeLocal {
		t.Errorf("bridge kind = %q, want %q", cfg.Bridge.Kind, BridgeLocal)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown bridge", map[string]string{"CONEA_BRIDGE_KIND": "carrier-pigeon"}},
		{"websocket without url", map[string]string{"CONEA_BRIDGE_KIND": "websocket"}},
		{"bad log format", map[string]string{"CONEA_LOG_FORMAT": "xml"}},
		{"bad digest address", map[string]string{"CONEA_DIGEST_TO": "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(t.TempDir()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
