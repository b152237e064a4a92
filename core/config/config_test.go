package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BatchLimit != 100 {
		t.Errorf("batch limit = %d, want 100", cfg.Telegram.BatchLimit)
	}
	if cfg.Polling.IntervalMS != 500 {
		t.Errorf("interval = %d, want 500", cfg.Polling.IntervalMS)
	}
	if cfg.Cursor.Backend != CursorBackendFile || cfg.Cursor.Path != DefaultCursorFile {
		t.Errorf("cursor = %+v", cfg.Cursor)
	}
	if cfg.Polling.Interval().Milliseconds() != 500 {
		t.Errorf("Interval() = %v", cfg.Polling.Interval())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: from-file\ncursor:\n  backend: bolt\n")
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("POLL_INTERVAL_MS", "250")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Polling.IntervalMS != 250 {
		t.Errorf("interval = %d", cfg.Polling.IntervalMS)
	}
	if cfg.Cursor.Backend != CursorBackendBolt || cfg.Cursor.Path != DefaultCursorBolt {
		t.Errorf("cursor = %+v", cfg.Cursor)
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]Config{
		"missing token": {},
		"batch limit":   {Telegram: TelegramConfig{Token: "t", BatchLimit: 101}},
		"negative poll": {Telegram: TelegramConfig{Token: "t", LongPollTimeoutSeconds: -1}},
		"cursor":        {Telegram: TelegramConfig{Token: "t"}, Cursor: CursorConfig{Backend: "redis"}},
	}
	for name, cfg := range cases {
		cfg := cfg
		if err := Normalize(&cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestTokenFromKeyring(t *testing.T) {
	keyring.MockInit()
	if err := keyring.Set(KeyringService, "bot", "secret-token"); err != nil {
		t.Fatalf("keyring set: %v", err)
	}
	cfg := Config{Telegram: TelegramConfig{Token: "keyring:bot"}}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.Token != "secret-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}

	cfg = Config{Telegram: TelegramConfig{Token: "keyring:missing"}}
	err := Normalize(&cfg)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected keyring lookup error, got %v", err)
	}
}
