package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/config"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(newTestLogger(), "no-such-config")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Address != ":3000" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Server.HandshakeTimeout != 10*time.Second {
		t.Errorf("handshake timeout = %v", cfg.Server.HandshakeTimeout)
	}
	if cfg.Transport.ReadTimeout != 0 {
		t.Errorf("read timeout = %v, want no idle timeout by default", cfg.Transport.ReadTimeout)
	}
	if len(cfg.Guilds) != 3 {
		t.Errorf("guilds = %v", cfg.Guilds)
	}
	if cfg.Directory.RateLimit.MaxCalls != 300 || cfg.Directory.RateLimit.SafetyBuffer != 10 {
		t.Errorf("rate limit = %+v", cfg.Directory.RateLimit)
	}
	if cfg.Sync.Interval != 10*time.Minute {
		t.Errorf("sync interval = %v", cfg.Sync.Interval)
	}
	if cfg.Storage.MemberFile != "guild_members.json" {
		t.Errorf("member file = %q", cfg.Storage.MemberFile)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IMSBRIDGE_SERVER_ADDRESS", ":9999")
	t.Setenv("IMSBRIDGE_DIRECTORY_APIKEY", "env-api-key")

	cfg, err := config.Load(newTestLogger(), "no-such-config")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("address = %q, env override lost", cfg.Server.Address)
	}
	if cfg.Directory.APIKey != "env-api-key" {
		t.Errorf("api key = %q, env override lost", cfg.Directory.APIKey)
	}
}
