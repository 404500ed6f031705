package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvWithDefault(t *testing.T) {
	const key = "TEST_BRIEFING_OUT_DIR"

	// 环境变量未设置时，应该返回默认值
	_ = os.Unsetenv(key)
	if got := getEnv(key, "out"); got != "out" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "out")
	}

	// 环境变量设置后，应优先返回环境变量
	if err := os.Setenv(key, "/srv/briefings"); err != nil {
		t.Fatalf("Setenv error: %v", err)
	}
	defer os.Unsetenv(key)
	if got := getEnv(key, "out"); got != "/srv/briefings" {
		t.Fatalf("getEnv(%q) = %q, want %q", key, got, "/srv/briefings")
	}
}

func TestGetEnvIntRejectsInvalid(t *testing.T) {
	const key = "TEST_MAX_INFLIGHT"
	defer os.Unsetenv(key)

	_ = os.Unsetenv(key)
	if got := getEnvInt(key, 8); got != 8 {
		t.Fatalf("getEnvInt default = %d, want 8", got)
	}

	_ = os.Setenv(key, "not-a-number")
	if got := getEnvInt(key, 8); got != 8 {
		t.Fatalf("getEnvInt invalid = %d, want fallback 8", got)
	}

	// 非正数同样落回默认值
	_ = os.Setenv(key, "-2")
	if got := getEnvInt(key, 8); got != 8 {
		t.Fatalf("getEnvInt negative = %d, want fallback 8", got)
	}

	_ = os.Setenv(key, "16")
	if got := getEnvInt(key, 8); got != 16 {
		t.Fatalf("getEnvInt = %d, want 16", got)
	}
}

func TestNow(t *testing.T) {
	if d := time.Since(Now()); d < 0 || d > time.Minute {
		t.Fatalf("Now drifted by %v", d)
	}
}

func TestLoadReadsBriefingSettings(t *testing.T) {
	_ = os.Setenv("APP_PORT", "1234")
	_ = os.Setenv("BRIEFING_CONFIG_ROOT", "/etc/briefing")
	_ = os.Setenv("CRON_SPEC", "30 5 * * *")
	defer func() {
		_ = os.Unsetenv("APP_PORT")
		_ = os.Unsetenv("BRIEFING_CONFIG_ROOT")
		_ = os.Unsetenv("CRON_SPEC")
	}()

	cfg := Load()
	if cfg.AppPort != "1234" {
		t.Fatalf("AppPort = %q, want %q", cfg.AppPort, "1234")
	}
	if cfg.ConfigRoot != "/etc/briefing" {
		t.Fatalf("ConfigRoot = %q, want %q", cfg.ConfigRoot, "/etc/briefing")
	}
	if cfg.CronSpec != "30 5 * * *" {
		t.Fatalf("CronSpec = %q, want %q", cfg.CronSpec, "30 5 * * *")
	}
}
