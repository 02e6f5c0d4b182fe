package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "POLL_TIMEOUT_SECONDS")
	unsetEnvWithCleanup(t, "REQUEST_TIMEOUT_SECONDS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8090" {
		t.Fatalf("expected default server port 8090, got %q", cfg.ServerPort)
	}
	if cfg.RequestTimeoutSeconds != 25 {
		t.Fatalf("expected default request timeout 25, got %d", cfg.RequestTimeoutSeconds)
	}
	if cfg.PollTimeoutSeconds != 15 {
		t.Fatalf("expected default poll timeout 15, got %d", cfg.PollTimeoutSeconds)
	}
	if cfg.StaleProfileMinutes != 60 {
		t.Fatalf("expected default stale profile threshold 60, got %d", cfg.StaleProfileMinutes)
	}
}

func TestLoadConfig_EnvOverridesDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "ASAAS_BASE_URL", "https://api.asaas.com/v3")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9000" {
		t.Fatalf("expected SERVER_PORT override, got %q", cfg.ServerPort)
	}
	if cfg.AsaasBaseURL != "https://api.asaas.com/v3" {
		t.Fatalf("expected ASAAS_BASE_URL override, got %q", cfg.AsaasBaseURL)
	}
}

func TestLoadConfig_ClampsPollBudgetBelowRequestCeiling(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "REQUEST_TIMEOUT_SECONDS", "25")
	setEnvWithCleanup(t, "POLL_TIMEOUT_SECONDS", "30")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollTimeoutSeconds != 15 {
		t.Fatalf("expected poll budget clamped to 15, got %d", cfg.PollTimeoutSeconds)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
			return
		}
		os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			os.Setenv(key, prev)
		}
	})
}
